package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
)

const (
	modelTask      = "project.task"
	modelProject   = "project.project"
	modelEmployee  = "hr.employee"
	modelTimesheet = "account.analytic.line"
)

// Gateway implements ledger.Gateway on top of an authenticated client
type Gateway struct {
	client *Client
	uid    int64
}

var _ ledger.Gateway = (*Gateway)(nil)

// NewGateway wraps a client authenticated as user uid
func NewGateway(client *Client, uid int64) *Gateway {
	return &Gateway{client: client, uid: uid}
}

// GatewayFactory builds gateways from the sessions stored in s
func (s *Sessions) GatewayFactory() ledger.GatewayFactory {
	return func(conn ledger.Connection) (ledger.Gateway, error) {
		sess, err := s.Load(conn.SessionName())
		if err != nil {
			return nil, err
		}
		client := NewClient(BaseURL(conn), s.timeout)
		client.SetSessionID(sess.SessionID)
		return NewGateway(client, sess.UID), nil
	}
}

// many2one decodes a relational field sent as [id, "display name"] or false
type many2one struct {
	ID   int64
	Name string
}

func (m *many2one) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*m = many2one{}
		return nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("relational field with %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &m.ID); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &m.Name)
}

// text decodes a char field, which is false when empty
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = text(s)
	return nil
}

type taskRecord struct {
	ID        int64    `json:"id"`
	Code      text     `json:"code"`
	Name      text     `json:"name"`
	ProjectID many2one `json:"project_id"`
	StageID   many2one `json:"stage_id"`
}

type projectRecord struct {
	ID   int64 `json:"id"`
	Name text  `json:"name"`
}

type domainFilter [][3]any

func (g *Gateway) search(ctx context.Context, model string, filter domainFilter, kwargs map[string]any) ([]int64, error) {
	var ids []int64
	if err := g.client.CallKW(ctx, model, "search", []any{filter}, kwargs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SearchTaskByCode finds the task with exactly this code
func (g *Gateway) SearchTaskByCode(ctx context.Context, code string) (int64, bool, error) {
	ids, err := g.search(ctx, modelTask, domainFilter{{"code", "=", code}}, map[string]any{"limit": 1})
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[0], true, nil
}

// SearchTasksAndProjects finds tasks and projects whose name contains term
func (g *Gateway) SearchTasksAndProjects(ctx context.Context, term string) ([]int64, []int64, error) {
	filter := domainFilter{{"name", "ilike", term}}
	taskIDs, err := g.search(ctx, modelTask, filter, map[string]any{"order": "project_id, code"})
	if err != nil {
		return nil, nil, err
	}
	projectIDs, err := g.search(ctx, modelProject, filter, nil)
	if err != nil {
		return nil, nil, err
	}
	return taskIDs, projectIDs, nil
}

// FetchTask reads one task
func (g *Gateway) FetchTask(ctx context.Context, id int64) (domain.RemoteTask, error) {
	var records []taskRecord
	fields := []string{"code", "name", "project_id", "stage_id"}
	if err := g.client.CallKW(ctx, modelTask, "read", []any{[]int64{id}, fields}, nil, &records); err != nil {
		return domain.RemoteTask{}, err
	}
	if len(records) == 0 {
		return domain.RemoteTask{}, &domain.RemoteError{Op: modelTask + ".read", Err: fmt.Errorf("task %d not found", id)}
	}
	r := records[0]
	return domain.RemoteTask{
		ID:          r.ID,
		Code:        string(r.Code),
		Name:        string(r.Name),
		ProjectID:   r.ProjectID.ID,
		ProjectName: r.ProjectID.Name,
		Stage:       r.StageID.Name,
	}, nil
}

// FetchProject reads one project
func (g *Gateway) FetchProject(ctx context.Context, id int64) (domain.RemoteProject, error) {
	var records []projectRecord
	if err := g.client.CallKW(ctx, modelProject, "read", []any{[]int64{id}, []string{"name"}}, nil, &records); err != nil {
		return domain.RemoteProject{}, err
	}
	if len(records) == 0 {
		return domain.RemoteProject{}, &domain.RemoteError{Op: modelProject + ".read", Err: fmt.Errorf("project %d not found", id)}
	}
	return domain.RemoteProject{ID: records[0].ID, Name: string(records[0].Name)}, nil
}

// CurrentEmployeeID returns the employee linked to the logged in user
func (g *Gateway) CurrentEmployeeID(ctx context.Context) (int64, bool, error) {
	ids, err := g.search(ctx, modelEmployee, domainFilter{{"user_id", "=", g.uid}}, map[string]any{"limit": 1})
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[0], true, nil
}

// CreateOrUpdateTimesheet writes vals to the timesheet line remoteID, or creates a new
// line when remoteID is nil. It returns the line id.
func (g *Gateway) CreateOrUpdateTimesheet(ctx context.Context, remoteID *int64, vals domain.RemoteTimesheet) (int64, error) {
	values := map[string]any{
		"name":        vals.Name,
		"project_id":  vals.ProjectID,
		"unit_amount": vals.UnitAmount,
		"date":        vals.Date,
	}
	if vals.TaskID != nil {
		values["task_id"] = *vals.TaskID
	}
	if vals.EmployeeID != nil {
		values["employee_id"] = *vals.EmployeeID
	}

	if remoteID != nil {
		var ok bool
		if err := g.client.CallKW(ctx, modelTimesheet, "write", []any{[]int64{*remoteID}, values}, nil, &ok); err != nil {
			return 0, err
		}
		if !ok {
			return 0, &domain.RemoteError{Op: modelTimesheet + ".write", Err: fmt.Errorf("line %d not updated", *remoteID)}
		}
		return *remoteID, nil
	}

	var id int64
	if err := g.client.CallKW(ctx, modelTimesheet, "create", []any{values}, nil, &id); err != nil {
		return 0, err
	}
	return id, nil
}

