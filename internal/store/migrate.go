package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

// SchemaVersion is the layout this build reads and writes
const SchemaVersion = 3

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// Steps run in ascending order. Each one must be safe to run again on a database
// that already has its changes.
var migrations = []migration{
	{1, "base tables", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schema)
		return err
	}},
	{2, "remote titles and remote id", func(ctx context.Context, tx *sql.Tx) error {
		return addColumns(ctx, tx, "timesheets", [][2]string{
			{"task_title", "TEXT NOT NULL DEFAULT ''"},
			{"project_title", "TEXT NOT NULL DEFAULT ''"},
			{"remote_id", "INTEGER"},
		})
	}},
	{3, "employee id and alias titles", func(ctx context.Context, tx *sql.Tx) error {
		if err := addColumns(ctx, tx, "timesheets", [][2]string{
			{"employee_id", "INTEGER"},
		}); err != nil {
			return err
		}
		return addColumns(ctx, tx, "aliases", [][2]string{
			{"task_title", "TEXT NOT NULL DEFAULT ''"},
			{"project_title", "TEXT NOT NULL DEFAULT ''"},
		})
	}},
}

func addColumns(ctx context.Context, tx *sql.Tx, table string, columns [][2]string) error {
	existing, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if existing[col[0]] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col[0], col[1])
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col[0], err)
		}
	}
	return nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// migrate brings the database up to SchemaVersion. The version tag is bumped once,
// after all steps succeeded.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)"); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	current, err := schemaVersion(ctx, tx)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	log.Info().Int("from", current).Int("to", SchemaVersion).Msg("migrating ledger database")
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		log.Debug().Int("version", m.version).Str("step", m.name).Msg("running migration")
		if err := m.apply(ctx, tx); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}

	if err := setMeta(ctx, tx, metaVersion, strconv.Itoa(SchemaVersion)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func schemaVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	value, ok, err := getMeta(ctx, tx, metaVersion)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}
	return v, nil
}
