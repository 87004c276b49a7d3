// Package ledger owns the date-indexed collection of timesheets, the alias registry and
// the single running timesheet.
package ledger

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pbaille/ots/internal/domain"
	"github.com/rs/zerolog"
)

// Gateway is the remote system the ledger synchronises with
type Gateway interface {
	domain.MetadataSource
	domain.TimesheetWriter
	SearchTasksAndProjects(ctx context.Context, term string) (taskIDs, projectIDs []int64, err error)
}

// GatewayFactory builds a Gateway for the stored connection parameters.
// It returns domain.ErrRemoteUnavailable when no session is stored.
type GatewayFactory func(conn Connection) (Gateway, error)

// BucketLoader reads the timesheets filed under one date, in insertion order
type BucketLoader func(date time.Time) ([]*domain.Timesheet, error)

// Connection holds the remote connection parameters saved at login
type Connection struct {
	Protocol string `json:"protocol"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
}

// SessionName identifies the stored remote session for these parameters
func (c Connection) SessionName() string {
	return fmt.Sprintf("ots_%s_%d_%s_%s_%s", c.Hostname, c.Port, c.Protocol, c.Database, c.Username)
}

// DefaultConnection is used until the user logs in
var DefaultConnection = Connection{Protocol: "jsonrpc+ssl", Port: 8069}

// Ledger is the root aggregate of all timesheets
type Ledger struct {
	nextID     int64
	buckets    map[string][]*domain.Timesheet
	loadBucket BucketLoader
	aliases    map[string]*domain.Alias

	current *domain.Timesheet
	last    *domain.Timesheet

	conn       Connection
	gateway    Gateway
	newGateway GatewayFactory

	out io.Writer
	now func() time.Time
	log zerolog.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithGateway sets the remote gateway directly
func WithGateway(gw Gateway) Option {
	return func(l *Ledger) { l.gateway = gw }
}

// WithGatewayFactory sets how the remote gateway is built on first use
func WithGatewayFactory(f GatewayFactory) Option {
	return func(l *Ledger) { l.newGateway = f }
}

// WithOutput sets where user-facing messages are written
func WithOutput(w io.Writer) Option {
	return func(l *Ledger) { l.out = w }
}

// WithClock overrides the current time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the diagnostic logger
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.log = logger }
}

// New creates an empty ledger
func New(opts ...Option) *Ledger {
	l := &Ledger{
		nextID:  1,
		buckets: make(map[string][]*domain.Timesheet),
		aliases: make(map[string]*domain.Alias),
		conn:    DefaultConnection,
		out:     io.Discard,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Snapshot is the persisted state of a ledger. Buckets holds only the dates that
// were loaded; dates that are absent are untouched.
type Snapshot struct {
	NextID     int64
	CurrentID  int64
	LastID     int64
	Connection Connection
	Aliases    []*domain.Alias
	Buckets    map[string][]*domain.Timesheet
}

// Restore rebuilds a ledger from a snapshot. Buckets missing from the snapshot are
// read through load when first needed. The running and last running timesheets must
// be part of the snapshot's buckets.
func Restore(snap Snapshot, load BucketLoader, opts ...Option) *Ledger {
	l := New(opts...)
	l.loadBucket = load
	if snap.NextID > l.nextID {
		l.nextID = snap.NextID
	}
	l.conn = snap.Connection
	for _, a := range snap.Aliases {
		l.aliases[a.Name] = a
	}
	for key, sheets := range snap.Buckets {
		l.buckets[key] = sheets
		for _, ts := range sheets {
			switch ts.ID {
			case snap.CurrentID:
				l.current = ts
			case snap.LastID:
				l.last = ts
			}
		}
	}
	if snap.CurrentID != 0 && l.current == nil {
		l.log.Warn().Int64("id", snap.CurrentID).Msg("running timesheet not found, clearing it")
	}
	if l.current != nil && !l.current.IsRunning() {
		l.log.Warn().Int64("id", l.current.ID).Msg("current timesheet is not running")
	}
	return l
}

// Snapshot returns the state to persist
func (l *Ledger) Snapshot() Snapshot {
	snap := Snapshot{
		NextID:     l.nextID,
		Connection: l.conn,
		Aliases:    l.Aliases(),
		Buckets:    make(map[string][]*domain.Timesheet, len(l.buckets)),
	}
	if l.current != nil {
		snap.CurrentID = l.current.ID
	}
	if l.last != nil {
		snap.LastID = l.last.ID
	}
	for key, sheets := range l.buckets {
		snap.Buckets[key] = sheets
	}
	return snap
}

// Connection returns the stored remote connection parameters
func (l *Ledger) Connection() Connection {
	return l.conn
}

// SetConnection stores new remote connection parameters and drops any cached gateway
func (l *Ledger) SetConnection(c Connection) {
	l.conn = c
	l.gateway = nil
}

// Running returns the running timesheet, if any
func (l *Ledger) Running() *domain.Timesheet {
	return l.current
}

// LastRunning returns the most recently stopped timesheet, if any
func (l *Ledger) LastRunning() *domain.Timesheet {
	return l.last
}

// Today returns the current calendar date
func (l *Ledger) Today() time.Time {
	return domain.Day(l.now())
}

func (l *Ledger) bucket(date time.Time) ([]*domain.Timesheet, error) {
	key := domain.DateKey(date)
	if sheets, ok := l.buckets[key]; ok {
		return sheets, nil
	}
	var sheets []*domain.Timesheet
	if l.loadBucket != nil {
		loaded, err := l.loadBucket(domain.Day(date))
		if err != nil {
			return nil, fmt.Errorf("load timesheets for %s: %w", key, err)
		}
		sheets = loaded
	}
	l.buckets[key] = sheets
	return sheets, nil
}

func (l *Ledger) insert(ts *domain.Timesheet) error {
	sheets, err := l.bucket(ts.Date)
	if err != nil {
		return err
	}
	ts.ID = l.nextID
	l.nextID++
	l.buckets[domain.DateKey(ts.Date)] = append(sheets, ts)
	return nil
}

func (l *Ledger) remote() (Gateway, error) {
	if l.gateway != nil {
		return l.gateway, nil
	}
	if l.newGateway == nil {
		return nil, domain.ErrRemoteUnavailable
	}
	gw, err := l.newGateway(l.conn)
	if err != nil {
		return nil, err
	}
	l.gateway = gw
	return gw, nil
}

func (l *Ledger) printf(format string, args ...any) {
	fmt.Fprintf(l.out, format+"\n", args...)
}
