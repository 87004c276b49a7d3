package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/spf13/cobra"
)

func aliasCmd(a *app) *cobra.Command {
	var (
		description       string
		projectID, taskID int64
		remove, refresh   bool
		details           bool
	)

	cmd := &cobra.Command{
		Use:   "alias [name] [task_code]",
		Short: "Create, list or delete aliases",
		Long: `Creates an alias for a timesheet. NAME is the name of the alias, used in place of a
task code to create timesheets from it. Without arguments the aliases are listed.

Example:
  ots alias emails T8217 -m "Emails"
  ots start emails    # starts a timesheet with task code T8217 and description "Emails"`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			switch {
			case refresh:
				return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
					failed, err := l.RefreshAliases(ctx)
					if err != nil {
						return err
					}
					if failed > 0 {
						fmt.Fprintf(out, "%d aliases could not be updated.\n", failed)
					}
					return nil
				})

			case remove:
				if len(args) != 1 {
					return fmt.Errorf("--delete needs exactly one alias name")
				}
				return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
					return l.DeleteAlias(args[0])
				})

			case len(args) == 0:
				return a.view(cmd, func(ctx context.Context, l *ledger.Ledger) error {
					printAliases(out, l.Aliases(), details)
					return nil
				})
			}

			p := ledger.AliasParams{Name: args[0], Description: description}
			if len(args) == 2 {
				p.TaskCode = args[1]
			}
			var err error
			if p.ProjectID, err = optionalID(cmd, "project_id", projectID); err != nil {
				return err
			}
			if p.TaskID, err = optionalID(cmd, "task_id", taskID); err != nil {
				return err
			}
			return a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				_, err := l.AddAlias(ctx, p)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&description, "message", "m", "", "description of the generated timesheets")
	cmd.Flags().Int64Var(&projectID, "project_id", 0, "Odoo database id of a project")
	cmd.Flags().Int64Var(&taskID, "task_id", 0, "Odoo database id of a task")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the named alias")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "update the task and project names of every alias from Odoo")
	cmd.Flags().BoolVar(&details, "details", false, "also list project and task ids")
	return cmd
}

func printAliases(out io.Writer, aliases []*domain.Alias, details bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "Alias\tTask Code\tDescription\tTitle\tProject"
	if details {
		header += "\tProject id\tTask id"
	}
	fmt.Fprintln(w, header)
	for _, alias := range aliases {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s", alias.Name, alias.TaskCode, alias.Description, alias.TaskTitle, alias.ProjectTitle)
		if details {
			fmt.Fprintf(w, "\t%s\t%s", formatID(alias.ProjectID), formatID(alias.TaskID))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(*id)
}
