package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned when stopping a timesheet that is not running
	ErrNotRunning = errors.New("attempting to stop a timesheet that is not running")

	// ErrInvalidState is returned for operations not allowed on a running timesheet
	ErrInvalidState = errors.New("can't edit the duration of a running timesheet, stop the timesheet and try again")

	// ErrAliasNotFound is returned when an alias name is not registered
	ErrAliasNotFound = errors.New("alias not found")

	// ErrRemoteUnavailable is returned when a remote session is required but none is stored
	ErrRemoteUnavailable = errors.New("no remote session stored, log in first with `ots login`")
)

// FormatError reports a malformed duration or index string
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid format %q: %s", e.Input, e.Reason)
}

// NoEntriesError reports an index pointing at a date without timesheets
type NoEntriesError struct {
	Date   string
	Action string
}

func (e *NoEntriesError) Error() string {
	return fmt.Sprintf("No timesheets for date %s, nothing to %s.", e.Date, e.Action)
}

// IndexOutOfRangeError reports a position past the end of a date's timesheets
type IndexOutOfRangeError struct {
	Date     string
	Index    int
	MaxIndex int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("Task index out of range. Max task index for %s is %d, got %d.", e.Date, e.MaxIndex, e.Index)
}

// RemoteError wraps a failed call to the remote system
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether err came from the remote system
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) || errors.Is(err, ErrRemoteUnavailable)
}
