package domain

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the ISO calendar date format used for dates on the command line and on disk
const DateLayout = "2006-01-02"

// Day truncates t to midnight of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey returns the ISO date of t
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// TaskRef identifies the remote task or project a record is booked on
type TaskRef struct {
	ProjectID    *int64 `json:"project_id,omitempty"`
	TaskID       *int64 `json:"task_id,omitempty"`
	TaskCode     string `json:"task_code"`
	TaskTitle    string `json:"task_title"`
	ProjectTitle string `json:"project_title"`
}

// Refresh re-reads task and project titles and ids from the remote system.
// The task code wins over the task id, which wins over the project id.
func (r *TaskRef) Refresh(ctx context.Context, src MetadataSource) error {
	switch {
	case r.TaskCode != "":
		id, ok, err := src.SearchTaskByCode(ctx, r.TaskCode)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return r.applyTask(ctx, src, id)
	case r.TaskID != nil:
		return r.applyTask(ctx, src, *r.TaskID)
	case r.ProjectID != nil:
		project, err := src.FetchProject(ctx, *r.ProjectID)
		if err != nil {
			return err
		}
		r.ProjectTitle = project.Name
	}
	return nil
}

func (r *TaskRef) applyTask(ctx context.Context, src MetadataSource, id int64) error {
	task, err := src.FetchTask(ctx, id)
	if err != nil {
		return err
	}
	r.TaskID = &task.ID
	r.TaskTitle = task.Name
	if r.TaskCode == "" {
		r.TaskCode = task.Code
	}
	if task.ProjectID != 0 {
		projectID := task.ProjectID
		r.ProjectID = &projectID
		r.ProjectTitle = task.ProjectName
	} else {
		r.ProjectID = nil
		r.ProjectTitle = ""
	}
	return nil
}

func (r TaskRef) clone() TaskRef {
	r.ProjectID = cloneID(r.ProjectID)
	r.TaskID = cloneID(r.TaskID)
	return r
}

// Timesheet is one recorded or in-progress span of tracked time
type Timesheet struct {
	TaskRef
	ID          int64         `json:"id"`
	UID         string        `json:"uid"`
	Description string        `json:"description"`
	Date        time.Time     `json:"date"`
	Duration    time.Duration `json:"duration"`
	StartTime   *time.Time    `json:"start_time,omitempty"`
	IsWorktime  bool          `json:"is_worktime"`
	RemoteID    *int64        `json:"remote_id,omitempty"`
	EmployeeID  *int64        `json:"employee_id,omitempty"`
	Created     time.Time     `json:"created"`
}

// NewTimesheet creates a stopped worktime timesheet filed under date
func NewTimesheet(taskCode, description string, date time.Time) *Timesheet {
	return &Timesheet{
		TaskRef:     TaskRef{TaskCode: taskCode},
		UID:         uuid.New().String(),
		Description: description,
		Date:        Day(date),
		IsWorktime:  true,
		Created:     time.Now(),
	}
}

// String renders the task code and description, the way entries are named in messages
func (t *Timesheet) String() string {
	switch {
	case t.TaskCode != "" && t.Description != "":
		return t.TaskCode + ", " + t.Description
	case t.TaskCode != "":
		return t.TaskCode
	default:
		return t.Description
	}
}

// IsRunning reports whether the timesheet is currently recording time
func (t *Timesheet) IsRunning() bool {
	return t.StartTime != nil
}

// Start begins recording at now. It returns false if the timesheet was already running.
func (t *Timesheet) Start(now time.Time) bool {
	if t.IsRunning() {
		return false
	}
	t.StartTime = &now
	return true
}

// Stop accumulates the time elapsed since Start into Duration
func (t *Timesheet) Stop(now time.Time) error {
	if !t.IsRunning() {
		return ErrNotRunning
	}
	elapsed := now.Sub(*t.StartTime)
	if elapsed > 0 {
		t.Duration += elapsed
	}
	t.StartTime = nil
	return nil
}

// SetDuration replaces the recorded duration of a stopped timesheet
func (t *Timesheet) SetDuration(d time.Duration) error {
	if t.IsRunning() {
		return ErrInvalidState
	}
	if d < 0 {
		return &FormatError{Input: d.String(), Reason: "duration must not be negative"}
	}
	t.Duration = d
	return nil
}

// DurationAt returns the recorded duration plus the running time up to now
func (t *Timesheet) DurationAt(now time.Time) time.Duration {
	d := t.Duration
	if t.IsRunning() {
		if elapsed := now.Sub(*t.StartTime); elapsed > 0 {
			d += elapsed
		}
	}
	return d
}

// FormattedDuration renders DurationAt(now), marking running timesheets
func (t *Timesheet) FormattedDuration(now time.Time) string {
	s := FormatDuration(t.DurationAt(now))
	if t.IsRunning() {
		s += " (running)"
	}
	return s
}

// EditFields is a partial update of a timesheet. Nil fields are left untouched.
type EditFields struct {
	Description *string
	Duration    *string
	TaskCode    *string
	TaskID      *int64
	ProjectID   *int64
	Date        *time.Time
}

// TouchesTask reports whether the edit changes the remote task identity
func (f EditFields) TouchesTask() bool {
	return f.TaskCode != nil || f.TaskID != nil || f.ProjectID != nil
}

// Edit applies f and reports whether anything changed.
// Nothing is applied when any field is invalid.
func (t *Timesheet) Edit(f EditFields) (bool, error) {
	duration := t.Duration
	if f.Duration != nil {
		if t.IsRunning() {
			return false, ErrInvalidState
		}
		d, err := ApplyDuration(*f.Duration, t.Duration)
		if err != nil {
			return false, err
		}
		duration = d
	}
	for _, id := range []*int64{f.TaskID, f.ProjectID} {
		if id != nil && *id <= 0 {
			return false, &FormatError{Input: strconv.FormatInt(*id, 10), Reason: "remote ids must be positive integers"}
		}
	}

	changed := false
	if f.Description != nil && *f.Description != t.Description {
		t.Description = *f.Description
		changed = true
	}
	if duration != t.Duration {
		t.Duration = duration
		changed = true
	}
	if f.TaskCode != nil && *f.TaskCode != t.TaskCode {
		t.TaskCode = *f.TaskCode
		changed = true
	}
	if f.TaskID != nil && (t.TaskID == nil || *t.TaskID != *f.TaskID) {
		t.TaskID = cloneID(f.TaskID)
		changed = true
	}
	if f.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *f.ProjectID) {
		t.ProjectID = cloneID(f.ProjectID)
		changed = true
	}
	if f.Date != nil && !Day(*f.Date).Equal(t.Date) {
		t.Date = Day(*f.Date)
		changed = true
	}
	return changed, nil
}

// Refresh updates the cached remote metadata and employee id
func (t *Timesheet) Refresh(ctx context.Context, src MetadataSource) error {
	if err := t.TaskRef.Refresh(ctx, src); err != nil {
		return err
	}
	id, ok, err := src.CurrentEmployeeID(ctx)
	if err != nil {
		return err
	}
	if ok {
		t.EmployeeID = &id
	} else {
		t.EmployeeID = nil
	}
	return nil
}

// PushOutcome describes what PushToRemote did
type PushOutcome int

const (
	PushSkipped PushOutcome = iota
	PushNoProject
	PushRunning
	PushCreated
	PushUpdated
)

func (o PushOutcome) String() string {
	switch o {
	case PushSkipped:
		return "skipped"
	case PushNoProject:
		return "no project"
	case PushRunning:
		return "running"
	case PushCreated:
		return "created"
	case PushUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// PushToRemote creates or updates the remote copy of the timesheet.
// Non-worktime, running and project-less timesheets are never pushed. The pushed hours
// are rounded to two decimals and written back to Duration so both sides agree.
func (t *Timesheet) PushToRemote(ctx context.Context, w TimesheetWriter) (PushOutcome, error) {
	if !t.IsWorktime {
		return PushSkipped, nil
	}
	if t.IsRunning() {
		return PushRunning, nil
	}
	if t.ProjectID == nil {
		return PushNoProject, nil
	}

	if t.EmployeeID == nil {
		id, ok, err := w.CurrentEmployeeID(ctx)
		if err != nil {
			return PushSkipped, err
		}
		if ok {
			t.EmployeeID = &id
		}
	}

	hours := Hours(t.Duration)
	name := t.Description
	if name == "" {
		name = "/"
	}
	vals := RemoteTimesheet{
		Name:       name,
		ProjectID:  *t.ProjectID,
		TaskID:     cloneID(t.TaskID),
		EmployeeID: cloneID(t.EmployeeID),
		UnitAmount: hours,
		Date:       DateKey(t.Date),
	}

	remoteID, err := w.CreateOrUpdateTimesheet(ctx, t.RemoteID, vals)
	if err != nil {
		return PushSkipped, err
	}
	t.Duration = time.Duration(math.Round(hours*3600)) * time.Second

	if t.RemoteID != nil {
		return PushUpdated, nil
	}
	t.RemoteID = &remoteID
	return PushCreated, nil
}

// Copy returns an independent stopped copy of the timesheet filed under date.
// The copy has no ledger id and no remote counterpart yet.
func (t *Timesheet) Copy(date time.Time) *Timesheet {
	c := *t
	c.TaskRef = t.TaskRef.clone()
	c.ID = 0
	c.UID = uuid.New().String()
	c.Date = Day(date)
	c.StartTime = nil
	c.RemoteID = nil
	c.EmployeeID = cloneID(t.EmployeeID)
	c.Created = time.Now()
	return &c
}

func cloneID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
