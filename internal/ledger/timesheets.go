package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/pbaille/ots/internal/domain"
)

// AddParams describes a timesheet to add. Zero values mean "not given".
type AddParams struct {
	// TaskCode is a remote task code or the name of an alias
	TaskCode    string
	Description string
	Date        *time.Time
	// Duration uses the [+|-]H[:MM] format, applied to a zero duration
	Duration  string
	TaskID    *int64
	ProjectID *int64
	NonWork   bool
}

// Add files a new stopped timesheet. A task code naming an alias generates the
// timesheet from the alias, with the description and date overridden when given.
func (l *Ledger) Add(ctx context.Context, p AddParams) (*domain.Timesheet, error) {
	date := l.Today()
	if p.Date != nil {
		date = domain.Day(*p.Date)
	}

	var ts *domain.Timesheet
	if _, ok := l.aliases[p.TaskCode]; ok && p.TaskCode != "" {
		generated, err := l.GenerateFromAlias(p.TaskCode)
		if err != nil {
			return nil, err
		}
		ts = generated
		ts.Date = date
		if p.Description != "" {
			ts.Description = p.Description
		}
	} else {
		ts = domain.NewTimesheet(p.TaskCode, p.Description, date)
	}
	ts.IsWorktime = !p.NonWork
	ts.Created = l.now()
	if p.TaskID != nil {
		id := *p.TaskID
		ts.TaskID = &id
	}
	if p.ProjectID != nil {
		id := *p.ProjectID
		ts.ProjectID = &id
	}

	if p.Duration != "" {
		d, err := domain.ApplyDuration(p.Duration, 0)
		if err != nil {
			return nil, err
		}
		if err := ts.SetDuration(d); err != nil {
			return nil, err
		}
	}

	if err := l.insert(ts); err != nil {
		return nil, err
	}
	l.log.Debug().Int64("id", ts.ID).Str("date", domain.DateKey(ts.Date)).Msg("timesheet added")

	l.refreshBestEffort(ctx, ts)
	return ts, nil
}

// AddAndStart adds a timesheet and starts it, stopping the running one first
func (l *Ledger) AddAndStart(ctx context.Context, p AddParams) (*domain.Timesheet, error) {
	ts, err := l.Add(ctx, p)
	if err != nil {
		return nil, err
	}
	if l.current != nil {
		l.StopRunning()
	}
	l.start(ts)
	return ts, nil
}

func (l *Ledger) start(ts *domain.Timesheet) {
	if ts.Start(l.now()) {
		l.printf("Timesheet started: %s", ts)
	} else {
		l.printf("Timesheet %s already started.", ts)
	}
	l.current = ts
}

// StopRunning stops the running timesheet and remembers it as the last running one.
// It returns the stopped timesheet, or nil when nothing was running.
func (l *Ledger) StopRunning() *domain.Timesheet {
	ts := l.current
	if ts == nil {
		return nil
	}
	// current may have been left stopped by an older version
	if ts.IsRunning() {
		if err := ts.Stop(l.now()); err == nil {
			l.printf("Timesheet stopped: %s", ts)
		}
	}
	l.last = ts
	l.current = nil
	return ts
}

// Resume restarts the timesheet at index, or the last running one when index is empty.
// A timesheet from a past date is not restarted itself: a zero-duration copy filed
// under today is started instead and the past timesheet is left as it was.
func (l *Ledger) Resume(ctx context.Context, index string) (*domain.Timesheet, error) {
	var target *domain.Timesheet
	if index != "" {
		ts, _, err := l.resolve(index, "resume")
		if err != nil {
			return nil, err
		}
		target = ts
	} else {
		target = l.last
	}

	if target == nil {
		l.printf("No timesheet to resume.")
		return nil, nil
	}
	if target.IsRunning() {
		l.printf("The timesheet to resume is already running.")
		return target, nil
	}

	if l.current != nil {
		l.StopRunning()
	} else {
		l.last = nil
	}

	today := l.Today()
	if target.Date.Before(today) {
		clone := target.Copy(today)
		clone.Duration = 0
		clone.Created = l.now()
		if err := l.insert(clone); err != nil {
			return nil, err
		}
		l.log.Debug().Int64("from", target.ID).Int64("id", clone.ID).Msg("resumed past timesheet as a copy")
		target = clone
	}

	l.start(target)
	if l.last == target {
		l.last = nil
	}
	return target, nil
}

// Edit applies a partial update to the timesheet at index and reports whether it
// changed. Moving a timesheet to another date appends it to that date.
func (l *Ledger) Edit(ctx context.Context, index string, f domain.EditFields) (bool, error) {
	ts, idx, err := l.resolve(index, "edit")
	if err != nil {
		return false, err
	}

	oldDate := ts.Date
	if f.Date != nil {
		// load the target date before mutating so a load failure leaves ts untouched
		if _, err := l.bucket(domain.Day(*f.Date)); err != nil {
			return false, err
		}
	}

	changed, err := ts.Edit(f)
	if err != nil {
		return false, err
	}

	if !ts.Date.Equal(oldDate) {
		l.remove(oldDate, idx.Position)
		key := domain.DateKey(ts.Date)
		l.buckets[key] = append(l.buckets[key], ts)
	}

	if changed && f.TouchesTask() {
		l.refreshBestEffort(ctx, ts)
	}
	return changed, nil
}

// Drop removes the timesheet at index. Later timesheets of the same date move up by one.
func (l *Ledger) Drop(index string) (*domain.Timesheet, error) {
	ts, idx, err := l.resolve(index, "drop")
	if err != nil {
		return nil, err
	}

	l.remove(ts.Date, idx.Position)
	if l.current == ts {
		l.current = nil
	}
	if l.last == ts {
		l.last = nil
	}
	l.printf("Dropped timesheet %s", ts)
	return ts, nil
}

func (l *Ledger) remove(date time.Time, position int) {
	key := domain.DateKey(date)
	sheets := l.buckets[key]
	out := make([]*domain.Timesheet, 0, len(sheets)-1)
	out = append(out, sheets[:position]...)
	out = append(out, sheets[position+1:]...)
	l.buckets[key] = out
}

// Row is one timesheet in a day listing
type Row struct {
	Index     string            `json:"index"`
	Timesheet *domain.Timesheet `json:"timesheet"`
}

// DayReport lists the timesheets of one date
type DayReport struct {
	Date time.Time `json:"date"`
	Rows []Row     `json:"rows"`
	// Total is the summed duration of worktime timesheets, including running time
	Total time.Duration `json:"total"`
}

// Day lists the timesheets of date in insertion order, labelled with their index
func (l *Ledger) Day(date time.Time) (DayReport, error) {
	date = domain.Day(date)
	sheets, err := l.bucket(date)
	if err != nil {
		return DayReport{}, err
	}

	offset := dateOffset(l.Today(), date)
	now := l.now()
	report := DayReport{Date: date}
	for i, ts := range sheets {
		report.Rows = append(report.Rows, Row{
			Index:     Index{DateOffset: offset, Position: i}.String(),
			Timesheet: ts,
		})
	}
	report.Total = TotalDuration(sheets, now)
	return report, nil
}

// Days lists count consecutive dates ending with last, oldest first
func (l *Ledger) Days(last time.Time, count int) ([]DayReport, error) {
	var reports []DayReport
	for i := count - 1; i >= 0; i-- {
		report, err := l.Day(domain.Day(last).AddDate(0, 0, -i))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// TotalDuration sums the durations of the worktime timesheets
func TotalDuration(sheets []*domain.Timesheet, now time.Time) time.Duration {
	var total time.Duration
	for _, ts := range sheets {
		if ts.IsWorktime {
			total += ts.DurationAt(now)
		}
	}
	return total
}

// refreshBestEffort updates remote metadata, reporting failures without returning them
func (l *Ledger) refreshBestEffort(ctx context.Context, ts *domain.Timesheet) {
	if ts.TaskCode == "" && ts.TaskID == nil && ts.ProjectID == nil {
		return
	}
	gw, err := l.remote()
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		l.log.Debug().Int64("id", ts.ID).Msg("no remote session, metadata not refreshed")
		return
	}
	if err == nil {
		err = ts.Refresh(ctx, gw)
	}
	if err != nil {
		l.log.Warn().Err(err).Int64("id", ts.ID).Msg("remote refresh failed")
		l.printf("Warning: could not update remote data for %s: %v", ts, err)
	}
}
