package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pbaille/ots/internal/config"
	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	tasks    map[string]domain.RemoteTask
	projects map[int64]domain.RemoteProject
	lines    map[int64]domain.RemoteTimesheet
	failFor  string
	nextID   int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tasks: map[string]domain.RemoteTask{
			"T100": {ID: 7, Code: "T100", Name: "Emails", ProjectID: 3, ProjectName: "Internal", Stage: "Ongoing"},
			"T200": {ID: 8, Code: "T200", Name: "Billing", ProjectID: 4, ProjectName: "Customer", Stage: "Done"},
		},
		projects: map[int64]domain.RemoteProject{3: {ID: 3, Name: "Internal"}, 4: {ID: 4, Name: "Customer"}},
		lines:    map[int64]domain.RemoteTimesheet{},
		nextID:   100,
	}
}

func (f *fakeRemote) SearchTaskByCode(ctx context.Context, code string) (int64, bool, error) {
	task, ok := f.tasks[code]
	return task.ID, ok, nil
}

func (f *fakeRemote) SearchTasksAndProjects(ctx context.Context, term string) ([]int64, []int64, error) {
	var taskIDs, projectIDs []int64
	for _, task := range f.tasks {
		if strings.Contains(strings.ToLower(task.Name), strings.ToLower(term)) {
			taskIDs = append(taskIDs, task.ID)
		}
	}
	for _, p := range f.projects {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(term)) {
			projectIDs = append(projectIDs, p.ID)
		}
	}
	return taskIDs, projectIDs, nil
}

func (f *fakeRemote) FetchTask(ctx context.Context, id int64) (domain.RemoteTask, error) {
	for _, task := range f.tasks {
		if task.ID == id {
			return task, nil
		}
	}
	return domain.RemoteTask{}, &domain.RemoteError{Op: "read task", Err: errors.New("missing")}
}

func (f *fakeRemote) FetchProject(ctx context.Context, id int64) (domain.RemoteProject, error) {
	return f.projects[id], nil
}

func (f *fakeRemote) CurrentEmployeeID(ctx context.Context) (int64, bool, error) {
	return 42, true, nil
}

func (f *fakeRemote) CreateOrUpdateTimesheet(ctx context.Context, remoteID *int64, vals domain.RemoteTimesheet) (int64, error) {
	if f.failFor != "" && vals.Name == f.failFor {
		return 0, &domain.RemoteError{Op: "create", Err: errors.New("access denied")}
	}
	if remoteID != nil {
		f.lines[*remoteID] = vals
		return *remoteID, nil
	}
	f.nextID++
	f.lines[f.nextID] = vals
	return f.nextID, nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	t      *testing.T
	dir    string
	clock  *testClock
	remote *fakeRemote
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:     t,
		dir:   t.TempDir(),
		clock: &testClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local)},
	}
}

// run executes one ots invocation, feeding input to the prompts
func (h *harness) run(input string, args ...string) (string, error) {
	a := &app{
		now: h.clock.now,
		gatewayFactory: func(conn ledger.Connection) (ledger.Gateway, error) {
			if h.remote == nil {
				return nil, domain.ErrRemoteUnavailable
			}
			return h.remote, nil
		},
		readPassword: func(string) (string, error) { return "secret", nil },
	}
	cmd := newRootCmd(a)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(append([]string{"--config-dir", h.dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	require.NoError(h.t, err, out)
	return out
}

func TestResumeWithNothingToResume(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("resume")
	assert.Contains(t, out, "No timesheet to resume.")

	out, err := h.run("", "resume", "0")
	require.Error(t, err)
	assert.Contains(t, out, "No timesheets for date 2026-10-15, nothing to resume.")
}

func TestStartStopResume(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("start", "-m", "standup")
	assert.Contains(t, out, "Timesheet started: standup")

	h.clock.advance(15 * time.Minute)
	out = h.mustRun("list")
	assert.Contains(t, out, "Timesheets for 2026-10-15, (Thursday)")
	assert.Contains(t, out, "00:15 (running)")
	assert.Contains(t, out, "Total Work Time: 00:15")

	out = h.mustRun("stop")
	assert.Contains(t, out, "Timesheet stopped: standup")
	out = h.mustRun("stop")
	assert.Contains(t, out, "No timesheet running.")

	h.clock.advance(time.Hour)
	out = h.mustRun("resume")
	assert.Contains(t, out, "Timesheet started: standup")

	h.clock.advance(15 * time.Minute)
	out = h.mustRun("list")
	assert.Contains(t, out, "00:30 (running)")
}

func TestResumeAlternatesBetweenTwoTimesheets(t *testing.T) {
	h := newHarness(t)

	h.mustRun("start", "-m", "first")
	h.clock.advance(10 * time.Minute)
	h.mustRun("start", "-m", "second")
	h.clock.advance(10 * time.Minute)

	out := h.mustRun("resume")
	assert.Contains(t, out, "Timesheet stopped: second")
	assert.Contains(t, out, "Timesheet started: first")

	out = h.mustRun("resume")
	assert.Contains(t, out, "Timesheet stopped: first")
	assert.Contains(t, out, "Timesheet started: second")
}

func TestResumePastTimesheetCopiesItToToday(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("add", "--date", "2026-10-13", "-d", "1:00", "-m", "migration")
	assert.Contains(t, out, "Timesheet added: migration")

	out = h.mustRun("list", "3")
	assert.Contains(t, out, "Timesheets for 2026-10-13, (Tuesday)")
	assert.Contains(t, out, "Timesheets for 2026-10-14, (Wednesday)")
	assert.Contains(t, out, "Timesheets for 2026-10-15, (Thursday)")
	assert.Contains(t, out, "2.0")
	assert.Contains(t, out, "01:00")

	out = h.mustRun("resume", "2.0")
	assert.Contains(t, out, "Timesheet started: migration")

	h.clock.advance(20 * time.Minute)
	out = h.mustRun("list")
	assert.Contains(t, out, "00:20 (running)")
	assert.Equal(t, 1, strings.Count(out, "migration"))

	out = h.mustRun("list", "--date", "2026-10-13")
	assert.Contains(t, out, "01:00")
	assert.NotContains(t, out, "running")

	assert.Equal(t, 2, strings.Count(h.mustRun("list", "3"), "migration"))
}

func TestEditAndDrop(t *testing.T) {
	h := newHarness(t)

	h.mustRun("add", "-d", "1:00", "-m", "review")
	h.mustRun("add", "-d", "0:30", "-m", "planning")

	out := h.mustRun("edit", "0", "-d", "+0:30")
	assert.Contains(t, out, "Timesheet updated.")
	out = h.mustRun("edit", "0", "-m", "review")
	assert.Contains(t, out, "Nothing to update.")

	out = h.mustRun("list")
	assert.Contains(t, out, "01:30")
	assert.Contains(t, out, "Total Work Time: 02:00")

	_, err := h.run("", "edit", "0", "-d=-3:00")
	var fe *domain.FormatError
	assert.ErrorAs(t, err, &fe)

	_, err = h.run("", "edit", "5", "-m", "x")
	var oor *domain.IndexOutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, 1, oor.MaxIndex)

	out, err = h.run("n\n", "drop", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Timesheet drop aborted.")

	out, err = h.run("y\n", "drop", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Dropped timesheet review")

	out = h.mustRun("list")
	assert.NotContains(t, out, "review")
	assert.Contains(t, out, "planning")
}

func TestEditRunningDurationIsRejected(t *testing.T) {
	h := newHarness(t)

	h.mustRun("start", "-m", "debugging")
	_, err := h.run("", "edit", "0", "-d", "1:00")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestEditMovesTimesheetToAnotherDate(t *testing.T) {
	h := newHarness(t)

	h.mustRun("add", "-d", "1:00", "-m", "late entry")
	h.mustRun("edit", "0", "--date", "2026-10-14")

	out := h.mustRun("list")
	assert.NotContains(t, out, "late entry")
	out = h.mustRun("list", "--date", "2026-10-14")
	assert.Contains(t, out, "1.0")
	assert.Contains(t, out, "late entry")
}

func TestLunchIsNotWorkTime(t *testing.T) {
	h := newHarness(t)

	h.mustRun("add", "-d", "2:00", "-m", "morning")
	out := h.mustRun("lunch")
	assert.Contains(t, out, "Timesheet started: Lunch")

	h.clock.advance(45 * time.Minute)
	out = h.mustRun("list")
	assert.Contains(t, out, "00:45 (running)")
	assert.Contains(t, out, "Total Work Time: 02:00")
}

func TestAliases(t *testing.T) {
	h := newHarness(t)
	h.remote = newFakeRemote()

	out := h.mustRun("alias", "mail", "T100", "-m", "Inbox")
	assert.Contains(t, out, "Alias mail added.")

	out = h.mustRun("alias")
	assert.Contains(t, out, "Alias")
	assert.Contains(t, out, "Inbox")
	assert.Contains(t, out, "Emails")
	assert.Contains(t, out, "Internal")

	out = h.mustRun("alias", "--details")
	assert.Contains(t, out, "Project id")

	out = h.mustRun("start", "mail")
	assert.Contains(t, out, "Timesheet started: T100, Inbox")

	out = h.mustRun("alias", "--refresh")
	assert.Contains(t, out, "[1/1] Updating alias mail")

	out = h.mustRun("alias", "--delete", "mail")
	assert.Contains(t, out, "Alias mail deleted.")

	_, err := h.run("", "alias", "--delete", "mail")
	assert.ErrorIs(t, err, domain.ErrAliasNotFound)
}

func TestPush(t *testing.T) {
	h := newHarness(t)
	h.remote = newFakeRemote()

	h.mustRun("add", "T100", "-d", "1:20", "-m", "triage")
	h.mustRun("add", "-d", "0:10", "-m", "no project")
	h.mustRun("lunch")

	out, err := h.run("n\n", "push")
	require.NoError(t, err)
	assert.Contains(t, out, "Push 2026-10-15?")
	assert.Contains(t, out, "Push aborted.")
	assert.Empty(t, h.remote.lines)

	out = h.mustRun("push", "-f")
	assert.Contains(t, out, "New timesheet created with id 101")
	assert.Contains(t, out, "Timesheet no project, no project_id. Not pushing.")
	require.Len(t, h.remote.lines, 1)
	line := h.remote.lines[101]
	assert.Equal(t, int64(3), line.ProjectID)
	assert.Equal(t, 1.33, line.UnitAmount)
	assert.Equal(t, "2026-10-15", line.Date)

	out, err = h.run("y\n", "push", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Timesheet 101 updated")
}

func TestPushKeepsSuccessfulResultsWhenOneFails(t *testing.T) {
	h := newHarness(t)
	h.remote = newFakeRemote()

	h.mustRun("add", "T100", "-d", "1:00", "-m", "rejected")
	h.mustRun("add", "T200", "-d", "1:00", "-m", "accepted")
	h.remote.failFor = "rejected"

	out, err := h.run("", "push", "-f")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Contains(t, out, "New timesheet created with id 101")

	h.remote.failFor = ""
	out = h.mustRun("push", "-f")
	assert.Contains(t, out, "Timesheet 101 updated")
	assert.Contains(t, out, "New timesheet created with id 102")
}

func TestPushIndexAndDateTogether(t *testing.T) {
	h := newHarness(t)
	h.remote = newFakeRemote()

	_, err := h.run("", "push", "0", "--date", "2026-10-15", "-f")
	assert.Error(t, err)
}

func TestPushWithoutSession(t *testing.T) {
	h := newHarness(t)

	h.mustRun("add", "T100", "-d", "1:00")
	_, err := h.run("", "push", "-f")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestSync(t *testing.T) {
	h := newHarness(t)

	h.mustRun("add", "T200", "-d", "0:45")
	h.remote = newFakeRemote()

	out := h.mustRun("sync")
	assert.Contains(t, out, "[1/1] Updating T200")
	assert.Contains(t, out, "New timesheet created with id 101")

	out = h.mustRun("list")
	assert.Contains(t, out, "Customer")
	assert.Contains(t, out, "T200 Billing")
}

func TestUpdateAndSearch(t *testing.T) {
	h := newHarness(t)

	h.mustRun("add", "T100", "-d", "0:30")
	out := h.mustRun("list")
	assert.NotContains(t, out, "Emails")

	h.remote = newFakeRemote()
	out = h.mustRun("update", "0")
	assert.Contains(t, out, "Timesheet updated: T100 (Internal / Emails)")

	out = h.mustRun("search", "T200")
	assert.Contains(t, out, `Search results for "T200"`)
	assert.Contains(t, out, "Tasks:")
	assert.Contains(t, out, "Billing")
	assert.NotContains(t, out, "Projects:")

	out = h.mustRun("search", "intern")
	assert.Contains(t, out, "Projects:")
	assert.Contains(t, out, "Internal")

	out = h.mustRun("search", "nothing like it")
	assert.Contains(t, out, "No results found.")
}

func TestSetup(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("odoo.example.com\n", "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved")

	cfg, err := config.Load(h.dir)
	require.NoError(t, err)
	assert.Equal(t, "odoo.example.com", cfg.OdooHostname)
	assert.True(t, cfg.SSL)
	assert.Equal(t, "ots.db", cfg.Filestore)

	_, err = h.run("\nn\nwork\n", "setup", "--advanced")
	require.NoError(t, err)
	cfg, err = config.Load(h.dir)
	require.NoError(t, err)
	assert.Equal(t, "odoo.example.com", cfg.OdooHostname)
	assert.False(t, cfg.SSL)
	assert.Equal(t, "work.db", cfg.Filestore)

	h.mustRun("add", "-d", "1:00", "-m", "separate")
	assert.FileExists(t, filepath.Join(h.dir, "work.db"))
}

func TestInvalidInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "add", "--date", "15/10/2026")
	var fe *domain.FormatError
	assert.ErrorAs(t, err, &fe)

	_, err = h.run("", "add", "-t", "0")
	assert.ErrorAs(t, err, &fe)

	_, err = h.run("", "list", "zero")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("--version")
	assert.Contains(t, out, "ots version dev")
}

// newLoginServer answers the session endpoints of an Odoo server with one database
func newLoginServer(t *testing.T) (*httptest.Server, *atomic.Bool) {
	destroyed := &atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params map[string]any `json:"params"`
			ID     int64          `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reply := func(result any) {
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		}
		ck, err := r.Cookie("session_id")
		authed := err == nil && ck.Value == "abc" && !destroyed.Load()

		switch r.URL.Path {
		case "/web/database/list":
			reply([]string{"prod"})
		case "/web/session/authenticate":
			if req.Params["login"] != "me" || req.Params["password"] != "secret" {
				reply(map[string]any{"uid": false})
				return
			}
			destroyed.Store(false)
			http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "abc"})
			reply(map[string]any{"uid": 9})
		case "/web/session/get_session_info":
			if !authed {
				reply(map[string]any{"uid": false})
				return
			}
			reply(map[string]any{"uid": 9})
		case "/web/session/destroy":
			destroyed.Store(true)
			reply(nil)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, destroyed
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t)
	srv, destroyed := newLoginServer(t)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	input := u.Hostname() + "\nme\nn\n" + u.Port() + "\n"
	out, err := h.run(input, "login")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Port [80]")
	assert.Contains(t, out, "Attempting to connect to database prod")
	assert.Contains(t, out, "Successfully logged in as uid 9.")

	cfg, err := config.Load(h.dir)
	require.NoError(t, err)
	assert.False(t, cfg.SSL)
	assert.Equal(t, "jsonrpc", cfg.Protocol())
	assert.Equal(t, u.Port(), strconv.Itoa(cfg.Port()))

	out, err = h.run("", "login")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Already logged in to "+u.Hostname()+" as me.")
	assert.NotContains(t, out, "Username")

	out, err = h.run("\n\n\n\n", "login", "--force")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Port ["+u.Port()+"]")
	assert.Contains(t, out, "Successfully logged in as uid 9.")

	out = h.mustRun("logout", "--all")
	assert.Contains(t, out, "1 sessions removed.")
	assert.True(t, destroyed.Load())

	out, err = h.run(input, "login")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Successfully logged in as uid 9.")
}
