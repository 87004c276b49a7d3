package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/spf13/cobra"
)

func addCmd(a *app) *cobra.Command {
	var (
		duration, description, date string
		taskID, projectID           int64
	)

	cmd := &cobra.Command{
		Use:   "add [task_code]",
		Short: "Add a timesheet without starting it",
		Long: `Adds a timesheet without starting it. The task code is the code of the task in
Odoo and is case sensitive. It can also be the name of an alias.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ledger.AddParams{Description: description, Duration: duration}
			if len(args) == 1 {
				p.TaskCode = args[0]
			}
			if date != "" {
				d, err := parseDate(date)
				if err != nil {
					return err
				}
				p.Date = &d
			}
			var err error
			if p.TaskID, err = optionalID(cmd, "task_id", taskID); err != nil {
				return err
			}
			if p.ProjectID, err = optionalID(cmd, "project_id", projectID); err != nil {
				return err
			}

			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				ts, err := l.Add(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Timesheet added: %s\n", ts)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&duration, "duration", "d", "", "duration of the timesheet, HH:mm")
	cmd.Flags().StringVarP(&description, "message", "m", "", "timesheet description")
	cmd.Flags().StringVar(&date, "date", "", "date to add the timesheet to, if not today (YYYY-MM-DD)")
	cmd.Flags().Int64VarP(&taskID, "task_id", "t", 0, "Odoo database id of a task")
	cmd.Flags().Int64VarP(&projectID, "project_id", "p", 0, "Odoo database id of a project")
	return cmd
}

func startCmd(a *app) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "start [task_code]",
		Short: "Start a new timesheet, stopping the running one",
		Long: `Starts a new timesheet and stops any running one.
The task code can be an Odoo task code or the name of an alias (see ots alias --help).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ledger.AddParams{Description: description}
			if len(args) == 1 {
				p.TaskCode = args[0]
			}
			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				_, err := l.AddAndStart(ctx, p)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&description, "message", "m", "", "timesheet description")
	return cmd
}

func stopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running timesheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				if l.StopRunning() == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No timesheet running.")
				}
				return nil
			})
		},
	}
}

func lunchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lunch",
		Short: "Start a lunch timesheet",
		Long: `Starts a lunch timesheet. Lunch is not work time: it is left out of the totals
and never pushed to Odoo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				_, err := l.AddAndStart(ctx, ledger.AddParams{Description: "Lunch", NonWork: true})
				return err
			})
		},
	}
}

func resumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [index]",
		Short: "Resume a timesheet",
		Long: `Resumes the timesheet at index. Without an index the previously running timesheet
is resumed, so running resume repeatedly alternates between two timesheets.
A timesheet from a past day is copied to today and the copy is started.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index string
			if len(args) == 1 {
				index = args[0]
			}
			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				_, err := l.Resume(ctx, index)
				return err
			})
		},
	}
}

const indexHelp = `The index is the one shown by ots list. It can be prefixed by a date offset and a
period: "1.0" is the first timesheet of yesterday.`

func editCmd(a *app) *cobra.Command {
	var (
		description, duration, code, date string
		taskID, projectID                 int64
	)

	cmd := &cobra.Command{
		Use:   "edit <index>",
		Short: "Edit a timesheet",
		Long:  "Edits an existing timesheet.\n" + indexHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var f domain.EditFields
			if cmd.Flags().Changed("message") {
				f.Description = &description
			}
			if cmd.Flags().Changed("duration") {
				f.Duration = &duration
			}
			if cmd.Flags().Changed("code") {
				f.TaskCode = &code
			}
			if date != "" {
				d, err := parseDate(date)
				if err != nil {
					return err
				}
				f.Date = &d
			}
			var err error
			if f.TaskID, err = optionalID(cmd, "task_id", taskID); err != nil {
				return err
			}
			if f.ProjectID, err = optionalID(cmd, "project_id", projectID); err != nil {
				return err
			}

			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				changed, err := l.Edit(ctx, args[0], f)
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintln(cmd.OutOrStdout(), "Timesheet updated.")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to update.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "message", "m", "", "new description")
	cmd.Flags().StringVarP(&duration, "duration", "d", "", "new duration, HH:mm; prefix with + or - to add to or subtract from the current one")
	cmd.Flags().StringVarP(&code, "code", "c", "", "task code")
	cmd.Flags().StringVar(&date, "date", "", "move the timesheet to this date (YYYY-MM-DD)")
	cmd.Flags().Int64VarP(&taskID, "task_id", "t", 0, "Odoo database id of a task")
	cmd.Flags().Int64VarP(&projectID, "project_id", "p", 0, "Odoo database id of a project")
	return cmd
}

func dropCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drop <index>",
		Short: "Drop a timesheet",
		Long:  "Drops a timesheet. Later timesheets of the same day move up by one.\n" + indexHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				ok, err := newPrompter(cmd).confirm("Confirm dropping timesheet", false)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Timesheet drop aborted.")
					return nil
				}
			}
			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				_, err := l.Drop(args[0])
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "list [days]",
		Short: "List timesheets",
		Long: `Lists the timesheets of a number of days ending with the given date, today by default.

DAYS: number of days to print, default 1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("days must be a positive number, got %q", args[0])
				}
				days = n
			}
			last := a.now()
			if date != "" {
				d, err := parseDate(date)
				if err != nil {
					return err
				}
				last = d
			}

			return a.view(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				reports, err := l.Days(last, days)
				if err != nil {
					return err
				}
				for _, report := range reports {
					printDay(cmd.OutOrStdout(), report, a.now())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "last date to print, if not today (YYYY-MM-DD)")
	return cmd
}

func printDay(out io.Writer, report ledger.DayReport, now time.Time) {
	fmt.Fprintf(out, "Timesheets for %s, (%s)\n", domain.DateKey(report.Date), report.Date.Weekday())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tProject\tTask\tDescription\tDuration")
	for _, row := range report.Rows {
		ts := row.Timesheet
		task := ts.TaskCode
		if ts.TaskTitle != "" {
			task += " " + truncate(ts.TaskTitle, 50)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.Index, ts.ProjectTitle, task, ts.Description, ts.FormattedDuration(now))
	}
	w.Flush()

	fmt.Fprintf(out, "Total Work Time: %s\n", domain.FormatDuration(report.Total))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func updateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <index>",
		Short: "Update the project and task information of a timesheet from Odoo",
		Long: `Re-reads the project and task names of a timesheet from Odoo, based on its task
code, task id or project id. No timesheet values are pushed or pulled.
` + indexHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				ts, err := l.Update(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Timesheet updated: %s (%s / %s)\n", ts, ts.ProjectTitle, ts.TaskTitle)
				return nil
			})
		},
	}
}
