package odoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/rs/zerolog/log"
)

// Session is a stored login
type Session struct {
	Connection ledger.Connection `json:"connection"`
	SessionID  string            `json:"session_id"`
	UID        int64             `json:"uid"`
	Created    time.Time         `json:"created"`
}

// Sessions stores sessions as JSON files in a directory, one per session name
type Sessions struct {
	dir     string
	timeout time.Duration
}

// NewSessions returns a session store rooted at dir
func NewSessions(dir string, timeout time.Duration) *Sessions {
	return &Sessions{dir: dir, timeout: timeout}
}

func (s *Sessions) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save writes the session under name
func (s *Sessions) Save(name string, sess Session) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.path(name), data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load reads the session stored under name. It returns domain.ErrRemoteUnavailable
// when there is none.
func (s *Sessions) Load(name string) (Session, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, domain.ErrRemoteUnavailable
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", name, err)
	}
	return sess, nil
}

// Remove deletes the session stored under name. Removing a missing session is not an error.
func (s *Sessions) Remove(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// List returns the names of the stored sessions
func (s *Sessions) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// IsStored reports whether a session exists for the connection
func (s *Sessions) IsStored(conn ledger.Connection) bool {
	_, err := os.Stat(s.path(conn.SessionName()))
	return err == nil
}

// IsSessionActive asks the server whether the stored session for conn is still valid
func (s *Sessions) IsSessionActive(ctx context.Context, conn ledger.Connection) (bool, error) {
	if !s.IsStored(conn) {
		return false, nil
	}
	sess, err := s.Load(conn.SessionName())
	if err != nil {
		return false, err
	}
	client := NewClient(BaseURL(conn), s.timeout)
	client.SetSessionID(sess.SessionID)
	_, ok, err := client.SessionUID(ctx)
	return ok, err
}

// Credentials are what login needs. An empty Database is resolved from the server's
// database list when it holds exactly one.
type Credentials struct {
	Hostname string
	Port     int
	// Protocol is jsonrpc or jsonrpc+ssl, jsonrpc when empty
	Protocol string
	Database string
	Username string
	Password string
}

// Login authenticates against the server, stores the session and returns the connection
// parameters to remember together with the user id. Progress is written to out.
func (s *Sessions) Login(ctx context.Context, cred Credentials, out io.Writer) (ledger.Connection, int64, error) {
	conn := ledger.Connection{
		Protocol: cred.Protocol,
		Hostname: cred.Hostname,
		Port:     cred.Port,
		Database: cred.Database,
		Username: cred.Username,
	}
	if conn.Protocol == "" {
		conn.Protocol = "jsonrpc"
	}

	client := NewClient(BaseURL(conn), s.timeout)
	if conn.Database == "" {
		fmt.Fprintln(out, "Trying to decide the database.")
		dbs, err := client.ListDatabases(ctx)
		if err != nil {
			return ledger.Connection{}, 0, err
		}
		switch len(dbs) {
		case 0:
			return ledger.Connection{}, 0, errors.New("no compatible databases found on the server, " +
				"either there are none or database listing is turned off; configure the database name")
		case 1:
			conn.Database = dbs[0]
			fmt.Fprintf(out, "Attempting to connect to database %s\n", conn.Database)
		default:
			return ledger.Connection{}, 0, fmt.Errorf("more than one database found on the server, "+
				"configure the correct one: %s", strings.Join(dbs, ", "))
		}
	}

	uid, err := client.Authenticate(ctx, conn.Database, conn.Username, cred.Password)
	if err != nil {
		return ledger.Connection{}, 0, err
	}

	sess := Session{Connection: conn, SessionID: client.SessionID(), UID: uid, Created: time.Now()}
	if err := s.Save(conn.SessionName(), sess); err != nil {
		return ledger.Connection{}, 0, err
	}
	log.Info().Str("session", conn.SessionName()).Int64("uid", uid).Msg("session stored")
	return conn, uid, nil
}

// Logout ends the stored session for conn on the server, when reachable, and removes it locally
func (s *Sessions) Logout(ctx context.Context, conn ledger.Connection) error {
	sess, err := s.Load(conn.SessionName())
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		return nil
	}
	if err != nil {
		return err
	}

	client := NewClient(BaseURL(conn), s.timeout)
	client.SetSessionID(sess.SessionID)
	if err := client.Destroy(ctx); err != nil {
		log.Warn().Err(err).Msg("could not end the remote session")
	}
	return s.Remove(conn.SessionName())
}
