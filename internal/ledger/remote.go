package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/ots/internal/domain"
)

// PushTarget selects what to push: one timesheet by index, or a whole date.
// With neither set, today is pushed.
type PushTarget struct {
	Index string
	Date  *time.Time
}

// PushFailure records a timesheet whose push failed
type PushFailure struct {
	Timesheet *domain.Timesheet
	Err       error
}

// PushReport summarises a push. Created and Updated hold remote ids.
type PushReport struct {
	Created  []int64
	Updated  []int64
	Skipped  []*domain.Timesheet
	Failures []PushFailure
}

// Err joins the failures into one error, or returns nil
func (r PushReport) Err() error {
	var errs []error
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("push %s: %w", f.Timesheet, f.Err))
	}
	return errors.Join(errs...)
}

// Push sends timesheets to the remote system. A failing timesheet does not stop the
// batch: the remaining ones are still pushed and the failures are collected in the report.
func (l *Ledger) Push(ctx context.Context, target PushTarget) (PushReport, error) {
	if target.Index != "" && target.Date != nil {
		return PushReport{}, errors.New("give an index or a date, not both")
	}

	var sheets []*domain.Timesheet
	if target.Index != "" {
		ts, _, err := l.resolve(target.Index, "push")
		if err != nil {
			return PushReport{}, err
		}
		sheets = []*domain.Timesheet{ts}
	} else {
		date := l.Today()
		if target.Date != nil {
			date = domain.Day(*target.Date)
		}
		bucket, err := l.bucket(date)
		if err != nil {
			return PushReport{}, err
		}
		sheets = bucket
	}

	gw, err := l.remote()
	if err != nil {
		return PushReport{}, err
	}
	return l.push(ctx, gw, sheets), nil
}

func (l *Ledger) push(ctx context.Context, gw Gateway, sheets []*domain.Timesheet) PushReport {
	var report PushReport
	for _, ts := range sheets {
		outcome, err := ts.PushToRemote(ctx, gw)
		if err != nil {
			l.log.Error().Err(err).Int64("id", ts.ID).Msg("push failed")
			l.printf("Failed to push timesheet %s: %v", ts, err)
			report.Failures = append(report.Failures, PushFailure{Timesheet: ts, Err: err})
			continue
		}

		switch outcome {
		case domain.PushCreated:
			l.printf("New timesheet created with id %d", *ts.RemoteID)
			report.Created = append(report.Created, *ts.RemoteID)
		case domain.PushUpdated:
			l.printf("Timesheet %d updated", *ts.RemoteID)
			report.Updated = append(report.Updated, *ts.RemoteID)
		case domain.PushRunning:
			l.printf("Timesheet %s is running, stop it before pushing. Not pushing.", ts)
			report.Skipped = append(report.Skipped, ts)
		case domain.PushNoProject:
			l.printf("Timesheet %s, no project_id. Not pushing.", ts)
			report.Skipped = append(report.Skipped, ts)
		default:
			report.Skipped = append(report.Skipped, ts)
		}
	}
	l.log.Info().
		Int("created", len(report.Created)).
		Int("updated", len(report.Updated)).
		Int("failed", len(report.Failures)).
		Msg("push finished")
	return report
}

// SearchResult holds remote tasks and projects matching a search term
type SearchResult struct {
	Tasks    []domain.RemoteTask    `json:"tasks"`
	Projects []domain.RemoteProject `json:"projects"`
}

// Search looks up a task by exact code first and falls back to a name search over
// tasks and projects.
func (l *Ledger) Search(ctx context.Context, term string) (SearchResult, error) {
	if term == "" {
		return SearchResult{}, &domain.FormatError{Input: term, Reason: "a search term is required"}
	}
	gw, err := l.remote()
	if err != nil {
		return SearchResult{}, err
	}

	var taskIDs, projectIDs []int64
	id, ok, err := gw.SearchTaskByCode(ctx, term)
	if err != nil {
		return SearchResult{}, err
	}
	if ok {
		taskIDs = []int64{id}
	} else {
		taskIDs, projectIDs, err = gw.SearchTasksAndProjects(ctx, term)
		if err != nil {
			return SearchResult{}, err
		}
	}

	var result SearchResult
	for _, id := range taskIDs {
		task, err := gw.FetchTask(ctx, id)
		if err != nil {
			return SearchResult{}, err
		}
		result.Tasks = append(result.Tasks, task)
	}
	for _, id := range projectIDs {
		project, err := gw.FetchProject(ctx, id)
		if err != nil {
			return SearchResult{}, err
		}
		result.Projects = append(result.Projects, project)
	}
	return result, nil
}

// Update re-reads the remote task and project data of the timesheet at index
func (l *Ledger) Update(ctx context.Context, index string) (*domain.Timesheet, error) {
	ts, _, err := l.resolve(index, "update")
	if err != nil {
		return nil, err
	}
	gw, err := l.remote()
	if err != nil {
		return nil, err
	}
	if ts.TaskCode == "" && ts.TaskID == nil && ts.ProjectID == nil {
		l.printf("Timesheet has no task code, information not updated.")
	}
	if err := ts.Refresh(ctx, gw); err != nil {
		return nil, err
	}
	return ts, nil
}

// Sync refreshes the remote data of every timesheet of date and then pushes the date
func (l *Ledger) Sync(ctx context.Context, date time.Time) (PushReport, error) {
	sheets, err := l.bucket(domain.Day(date))
	if err != nil {
		return PushReport{}, err
	}
	gw, err := l.remote()
	if err != nil {
		return PushReport{}, err
	}
	for i, ts := range sheets {
		l.printf("[%d/%d] Updating %s", i+1, len(sheets), ts)
		l.refreshBestEffort(ctx, ts)
	}
	return l.push(ctx, gw, sheets), nil
}
