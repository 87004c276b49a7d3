package domain

import "time"

// Alias is a named template for timesheets that are started often
type Alias struct {
	TaskRef
	Name        string `json:"name"`
	Description string `json:"description"`
}

// String renders the alias the same way a generated timesheet is named
func (a *Alias) String() string {
	switch {
	case a.TaskCode != "" && a.Description != "":
		return a.TaskCode + ", " + a.Description
	case a.TaskCode != "":
		return a.TaskCode
	default:
		return a.Description
	}
}

// Generate creates a new timesheet for date pre-filled from the alias.
// The timesheet shares no state with the alias.
func (a *Alias) Generate(date time.Time) *Timesheet {
	t := NewTimesheet(a.TaskCode, a.Description, date)
	t.TaskRef = a.TaskRef.clone()
	return t
}
