package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/rs/zerolog/log"
)

const (
	metaVersion    = "version"
	metaNextID     = "next_id"
	metaCurrentID  = "current_id"
	metaLastID     = "last_id"
	metaConnection = "connection"
)

// Store persists the ledger in a SQLite database
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and migrates it to the current schema
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection, so a command holds the only write transaction
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn against the ledger inside one transaction. The ledger state is
// committed when fn returns nil and rolled back otherwise, so a failed or interrupted
// command leaves the database as it was.
func (s *Store) Update(ctx context.Context, fn func(*ledger.Ledger) error, opts ...ledger.Option) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	l, err := s.restore(ctx, tx, opts)
	if err != nil {
		return err
	}
	if err := fn(l); err != nil {
		return err
	}
	if err := save(ctx, tx, l.Snapshot()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// View runs fn against the ledger without saving any change
func (s *Store) View(ctx context.Context, fn func(*ledger.Ledger) error, opts ...ledger.Option) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	l, err := s.restore(ctx, tx, opts)
	if err != nil {
		return err
	}
	return fn(l)
}

func (s *Store) restore(ctx context.Context, tx *sql.Tx, opts []ledger.Option) (*ledger.Ledger, error) {
	snap := ledger.Snapshot{
		Connection: ledger.DefaultConnection,
		Buckets:    make(map[string][]*domain.Timesheet),
	}

	var err error
	if snap.NextID, err = metaInt(ctx, tx, metaNextID); err != nil {
		return nil, err
	}
	if snap.CurrentID, err = metaInt(ctx, tx, metaCurrentID); err != nil {
		return nil, err
	}
	if snap.LastID, err = metaInt(ctx, tx, metaLastID); err != nil {
		return nil, err
	}

	raw, ok, err := getMeta(ctx, tx, metaConnection)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &snap.Connection); err != nil {
			return nil, fmt.Errorf("decode connection: %w", err)
		}
	}

	if snap.Aliases, err = loadAliases(ctx, tx); err != nil {
		return nil, err
	}

	// the running and last running timesheets are referenced by id, so their dates
	// must be loaded up front
	for _, id := range []int64{snap.CurrentID, snap.LastID} {
		if id == 0 {
			continue
		}
		var date string
		err := tx.QueryRowContext(ctx, "SELECT date FROM timesheets WHERE id = ?", id).Scan(&date)
		if err == sql.ErrNoRows {
			log.Warn().Int64("id", id).Msg("referenced timesheet no longer exists")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find timesheet %d: %w", id, err)
		}
		if _, loaded := snap.Buckets[date]; loaded {
			continue
		}
		sheets, err := loadBucket(ctx, tx, date)
		if err != nil {
			return nil, err
		}
		snap.Buckets[date] = sheets
	}

	loader := func(date time.Time) ([]*domain.Timesheet, error) {
		return loadBucket(ctx, tx, domain.DateKey(date))
	}
	return ledger.Restore(snap, loader, opts...), nil
}

const timesheetColumns = `id, uid, date, project_id, task_id, task_code, description, duration_ns,
	start_time, is_worktime, created, task_title, project_title, remote_id, employee_id`

func loadBucket(ctx context.Context, tx *sql.Tx, date string) ([]*domain.Timesheet, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+timesheetColumns+" FROM timesheets WHERE date = ? ORDER BY position",
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("list timesheets: %w", err)
	}
	defer rows.Close()

	var sheets []*domain.Timesheet
	for rows.Next() {
		ts, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, ts)
	}
	return sheets, rows.Err()
}

func scanTimesheet(rows *sql.Rows) (*domain.Timesheet, error) {
	var (
		ts                                      domain.Timesheet
		date                                    string
		projectID, taskID, remoteID, employeeID sql.NullInt64
		startTime                               sql.NullInt64
		durationNS, created                     int64
	)
	err := rows.Scan(
		&ts.ID, &ts.UID, &date, &projectID, &taskID, &ts.TaskCode, &ts.Description, &durationNS,
		&startTime, &ts.IsWorktime, &created, &ts.TaskTitle, &ts.ProjectTitle, &remoteID, &employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("scan timesheet: %w", err)
	}

	ts.Date, err = time.ParseInLocation(domain.DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse date of timesheet %d: %w", ts.ID, err)
	}
	ts.Duration = time.Duration(durationNS)
	ts.Created = time.Unix(0, created)
	if startTime.Valid {
		st := time.Unix(0, startTime.Int64)
		ts.StartTime = &st
	}
	ts.ProjectID = nullableID(projectID)
	ts.TaskID = nullableID(taskID)
	ts.RemoteID = nullableID(remoteID)
	ts.EmployeeID = nullableID(employeeID)
	return &ts, nil
}

func loadAliases(ctx context.Context, tx *sql.Tx) ([]*domain.Alias, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT name, project_id, task_id, task_code, description, task_title, project_title FROM aliases ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*domain.Alias
	for rows.Next() {
		var (
			a                 domain.Alias
			projectID, taskID sql.NullInt64
		)
		if err := rows.Scan(&a.Name, &projectID, &taskID, &a.TaskCode, &a.Description, &a.TaskTitle, &a.ProjectTitle); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		a.ProjectID = nullableID(projectID)
		a.TaskID = nullableID(taskID)
		aliases = append(aliases, &a)
	}
	return aliases, rows.Err()
}

func save(ctx context.Context, tx *sql.Tx, snap ledger.Snapshot) error {
	conn, err := json.Marshal(snap.Connection)
	if err != nil {
		return fmt.Errorf("encode connection: %w", err)
	}
	meta := map[string]string{
		metaNextID:     strconv.FormatInt(snap.NextID, 10),
		metaCurrentID:  strconv.FormatInt(snap.CurrentID, 10),
		metaLastID:     strconv.FormatInt(snap.LastID, 10),
		metaConnection: string(conn),
	}
	for key, value := range meta {
		if err := setMeta(ctx, tx, key, value); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM aliases"); err != nil {
		return fmt.Errorf("clear aliases: %w", err)
	}
	for _, a := range snap.Aliases {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO aliases (name, project_id, task_id, task_code, description, task_title, project_title) VALUES (?, ?, ?, ?, ?, ?, ?)",
			a.Name, a.ProjectID, a.TaskID, a.TaskCode, a.Description, a.TaskTitle, a.ProjectTitle,
		)
		if err != nil {
			return fmt.Errorf("insert alias %s: %w", a.Name, err)
		}
	}

	// a timesheet moved between dates is in two loaded buckets' rows, so clear every
	// loaded date before writing any of them back
	for date := range snap.Buckets {
		if _, err := tx.ExecContext(ctx, "DELETE FROM timesheets WHERE date = ?", date); err != nil {
			return fmt.Errorf("clear timesheets for %s: %w", date, err)
		}
	}
	for date, sheets := range snap.Buckets {
		for position, ts := range sheets {
			if err := insertTimesheet(ctx, tx, date, position, ts); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertTimesheet(ctx context.Context, tx *sql.Tx, date string, position int, ts *domain.Timesheet) error {
	var startTime *int64
	if ts.StartTime != nil {
		ns := ts.StartTime.UnixNano()
		startTime = &ns
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO timesheets (`+timesheetColumns+`, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.ID, ts.UID, date, ts.ProjectID, ts.TaskID, ts.TaskCode, ts.Description, int64(ts.Duration),
		startTime, ts.IsWorktime, ts.Created.UnixNano(), ts.TaskTitle, ts.ProjectTitle, ts.RemoteID, ts.EmployeeID,
		position,
	)
	if err != nil {
		return fmt.Errorf("insert timesheet %d: %w", ts.ID, err)
	}
	return nil
}

func getMeta(ctx context.Context, tx *sql.Tx, key string) (string, bool, error) {
	var value string
	err := tx.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, true, nil
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

func metaInt(ctx context.Context, tx *sql.Tx, key string) (int64, error) {
	value, ok, err := getMeta(ctx, tx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse meta %s: %w", key, err)
	}
	return n, nil
}

func nullableID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
