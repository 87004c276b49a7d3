package domain

import "context"

// RemoteTask is the part of a remote task the ledger reads
type RemoteTask struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	ProjectID   int64  `json:"project_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	Stage       string `json:"stage,omitempty"`
}

// RemoteProject is the part of a remote project the ledger reads
type RemoteProject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RemoteTimesheet holds the values written to a remote timesheet line
type RemoteTimesheet struct {
	Name       string
	ProjectID  int64
	TaskID     *int64
	EmployeeID *int64
	UnitAmount float64
	Date       string
}

// MetadataSource resolves task and project metadata on the remote system
type MetadataSource interface {
	SearchTaskByCode(ctx context.Context, code string) (int64, bool, error)
	FetchTask(ctx context.Context, id int64) (RemoteTask, error)
	FetchProject(ctx context.Context, id int64) (RemoteProject, error)
	CurrentEmployeeID(ctx context.Context) (int64, bool, error)
}

// TimesheetWriter creates or updates remote timesheet lines
type TimesheetWriter interface {
	CurrentEmployeeID(ctx context.Context) (int64, bool, error)
	CreateOrUpdateTimesheet(ctx context.Context, remoteID *int64, vals RemoteTimesheet) (int64, error)
}
