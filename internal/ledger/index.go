package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/ots/internal/domain"
)

// Index addresses a timesheet as "N" (today's N-th entry) or "D.N" (the N-th entry
// D days ago). Indexes are positions in a date's bucket and shift when entries are dropped.
type Index struct {
	DateOffset int
	Position   int
}

// ParseIndex parses an index string
func ParseIndex(s string) (Index, error) {
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Index{}, indexError(s)
	}

	var idx Index
	position := parts[0]
	if len(parts) == 2 {
		offset, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return Index{}, indexError(s)
		}
		idx.DateOffset = offset
		position = parts[1]
	}

	n, err := strconv.Atoi(strings.TrimSpace(position))
	if err != nil || n < 0 {
		return Index{}, indexError(s)
	}
	idx.Position = n
	return idx, nil
}

func indexError(s string) error {
	return &domain.FormatError{
		Input:  s,
		Reason: "the index needs to be an integer, or two integers separated by a period '.'",
	}
}

// String renders the index the way it is shown in listings
func (i Index) String() string {
	if i.DateOffset == 0 {
		return strconv.Itoa(i.Position)
	}
	return strconv.Itoa(i.DateOffset) + "." + strconv.Itoa(i.Position)
}

// Date returns the calendar date the index points at, relative to today
func (i Index) Date(today time.Time) time.Time {
	return domain.Day(today).AddDate(0, 0, -i.DateOffset)
}

// dateOffset is the number of calendar days from date back to today
func dateOffset(today, date time.Time) int {
	return int(dayNumber(today) - dayNumber(date))
}

func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// resolve finds the timesheet an index points at. action names the command in the
// error reported for an empty date.
func (l *Ledger) resolve(s, action string) (*domain.Timesheet, Index, error) {
	idx, err := ParseIndex(s)
	if err != nil {
		return nil, Index{}, err
	}

	date := idx.Date(l.Today())
	sheets, err := l.bucket(date)
	if err != nil {
		return nil, idx, err
	}
	if len(sheets) == 0 {
		return nil, idx, &domain.NoEntriesError{Date: domain.DateKey(date), Action: action}
	}
	if idx.Position > len(sheets)-1 {
		return nil, idx, &domain.IndexOutOfRangeError{
			Date:     domain.DateKey(date),
			Index:    idx.Position,
			MaxIndex: len(sheets) - 1,
		}
	}
	return sheets[idx.Position], idx, nil
}
