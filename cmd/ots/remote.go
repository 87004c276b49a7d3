package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/pbaille/ots/internal/config"
	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/pbaille/ots/internal/odoo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func pushCmd(a *app) *cobra.Command {
	var (
		date  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "push [index]",
		Short: "Push timesheets to Odoo",
		Long: `Pushes timesheets to Odoo. Without arguments all timesheets of today are pushed.
With an index only that timesheet is pushed, with --date all timesheets of that day.
A timesheet that fails does not stop the others; the failures are reported at the end.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target ledger.PushTarget
			if len(args) == 1 {
				target.Index = args[0]
			}
			if date != "" {
				d, err := parseDate(date)
				if err != nil {
					return err
				}
				target.Date = &d
			}
			if target.Index != "" && target.Date != nil {
				return errors.New("give an index or a date, not both: an index pushes a single timesheet, a date pushes a whole day")
			}

			if !force {
				what := target.Index
				switch {
				case date != "":
					what = date
				case what == "":
					what = domain.DateKey(a.now())
				}
				ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Push %s?", what), false)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Push aborted.")
					return nil
				}
			}

			var report ledger.PushReport
			err := a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				var err error
				report, err = l.Push(ctx, target)
				return err
			})
			if err != nil {
				return err
			}
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "date to push, if not today (YYYY-MM-DD)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")
	return cmd
}

func syncCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise a day of timesheets with Odoo",
		Long: `Updates the task and project information of every timesheet of the day from Odoo,
then pushes them. Today by default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := a.now()
			if date != "" {
				d, err := parseDate(date)
				if err != nil {
					return err
				}
				day = d
			}

			var report ledger.PushReport
			err := a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				var err error
				report, err = l.Sync(ctx, day)
				return err
			})
			if err != nil {
				return err
			}
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "date to synchronise, if not today (YYYY-MM-DD)")
	return cmd
}

func searchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search tasks and projects in Odoo",
		Long: `Searches for a task in Odoo. When the term is the exact code of a task only that
task is shown. Otherwise tasks and projects are searched by name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.view(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				result, err := l.Search(ctx, args[0])
				if err != nil {
					return err
				}
				printSearch(cmd.OutOrStdout(), args[0], result)
				return nil
			})
		},
	}
}

func printSearch(out io.Writer, term string, result ledger.SearchResult) {
	if len(result.Tasks) == 0 && len(result.Projects) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}
	fmt.Fprintf(out, "Search results for %q\n", term)

	if len(result.Tasks) > 0 {
		fmt.Fprintln(out, "Tasks:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "code\tname\tproject\tstage\tid")
		for _, t := range result.Tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.Code, t.Name, t.ProjectName, t.Stage, t.ID)
		}
		w.Flush()
	}

	if len(result.Projects) > 0 {
		fmt.Fprintln(out, "Projects:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "name\tid")
		for _, p := range result.Projects {
			fmt.Fprintf(w, "%s\t%d\n", p.Name, p.ID)
		}
		w.Flush()
	}
}

func loginCmd(a *app) *cobra.Command {
	var (
		database string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to Odoo and save the session",
		Long: `Logs in to Odoo and saves the session. The saved session is used for every
connection to Odoo until ots logout removes it. When the saved session is still
valid nothing is asked, unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if !force {
				var current ledger.Connection
				err := a.view(cmd, func(ctx context.Context, l *ledger.Ledger) error {
					current = l.Connection()
					return nil
				})
				if err != nil {
					return err
				}
				if current.Hostname != "" {
					active, err := a.sessions.IsSessionActive(cmd.Context(), current)
					if err != nil {
						log.Warn().Err(err).Str("host", current.Hostname).Msg("could not check the stored session")
					}
					if active {
						fmt.Fprintf(out, "Already logged in to %s as %s. Use --force to log in again.\n", current.Hostname, current.Username)
						return nil
					}
				}
			}

			p := newPrompter(cmd)
			cfg := a.cfg

			hostname, err := p.ask("Odoo's hostname e.g. 'mycompany.odoo.com'", cfg.OdooHostname)
			if err != nil {
				return err
			}
			username, err := p.ask("Username", cfg.OdooLogin)
			if err != nil {
				return err
			}
			ssl, err := p.confirm("SSL?", cfg.SSL)
			if err != nil {
				return err
			}
			if ssl != cfg.SSL {
				// a port configured for the other protocol does not carry over
				cfg.SSL = ssl
				cfg.OdooPort = 0
			}
			rawPort, err := p.ask("Port", strconv.Itoa(cfg.Port()))
			if err != nil {
				return err
			}
			port, err := strconv.Atoi(rawPort)
			if err != nil || port <= 0 {
				return &domain.FormatError{Input: rawPort, Reason: "the port must be a positive number"}
			}
			password, err := p.password(a, "Password")
			if err != nil {
				return err
			}
			if database == "" {
				database = cfg.OdooDB
			}

			cfg.OdooHostname = hostname
			cfg.OdooLogin = username
			cfg.OdooPort = port
			cfg.OdooDB = database
			if err := config.Save(a.configDir, cfg); err != nil {
				return err
			}
			fmt.Fprintln(out, "Configuration saved")

			conn, uid, err := a.sessions.Login(cmd.Context(), odoo.Credentials{
				Hostname: hostname,
				Port:     port,
				Protocol: cfg.Protocol(),
				Database: database,
				Username: username,
				Password: password,
			}, out)
			if err != nil {
				return err
			}

			err = a.update(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				l.SetConnection(conn)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Successfully logged in as uid %d.\n", uid)
			return nil
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "database to connect to")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "log in again even when the saved session is valid")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out of Odoo and remove the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if all {
				names, err := a.sessions.List()
				if err != nil {
					return err
				}
				for _, name := range names {
					sess, err := a.sessions.Load(name)
					if err != nil {
						return err
					}
					if err := a.sessions.Logout(cmd.Context(), sess.Connection); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "%d sessions removed.\n", len(names))
				return nil
			}

			var conn ledger.Connection
			err := a.view(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				conn = l.Connection()
				return nil
			})
			if err != nil {
				return err
			}
			if err := a.sessions.Logout(cmd.Context(), conn); err != nil {
				return err
			}
			fmt.Fprintln(out, "Session removed.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "remove every saved session")
	return cmd
}
