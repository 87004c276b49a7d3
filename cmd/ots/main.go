package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/ots/internal/config"
	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/pbaille/ots/internal/odoo"
	"github.com/pbaille/ots/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

// app is the state shared by all commands of one invocation
type app struct {
	configDir string
	logLevel  string

	env      *config.Env
	cfg      *config.Config
	sessions *odoo.Sessions

	now            func() time.Time
	gatewayFactory ledger.GatewayFactory
	readPassword   func(prompt string) (string, error)
}

func main() {
	config.InitLogger()

	if err := newRootCmd(&app{now: time.Now}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ots",
		Short:        "Record your time usage and send it to Odoo",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default $OTS_HOME or ~/.ots)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default $OTS_LOG_LEVEL)")

	rootCmd.AddCommand(addCmd(a))
	rootCmd.AddCommand(startCmd(a))
	rootCmd.AddCommand(stopCmd(a))
	rootCmd.AddCommand(editCmd(a))
	rootCmd.AddCommand(dropCmd(a))
	rootCmd.AddCommand(lunchCmd(a))
	rootCmd.AddCommand(resumeCmd(a))
	rootCmd.AddCommand(listCmd(a))
	rootCmd.AddCommand(updateCmd(a))
	rootCmd.AddCommand(aliasCmd(a))
	rootCmd.AddCommand(pushCmd(a))
	rootCmd.AddCommand(syncCmd(a))
	rootCmd.AddCommand(searchCmd(a))
	rootCmd.AddCommand(loginCmd(a))
	rootCmd.AddCommand(logoutCmd(a))
	rootCmd.AddCommand(setupCmd(a))
	rootCmd.AddCommand(serveCmd(a))

	return rootCmd
}

func (a *app) init() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	a.env = env

	level := a.logLevel
	if level == "" {
		level = env.LogLevel
	}
	if err := config.SetLogLevel(level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	if a.configDir, err = config.Dir(a.configDir, env); err != nil {
		return err
	}
	if err := os.MkdirAll(a.configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if a.cfg, err = config.Load(a.configDir); err != nil {
		return err
	}

	a.sessions = odoo.NewSessions(filepath.Join(a.configDir, "sessions"), env.RemoteTimeout)
	if a.gatewayFactory == nil {
		a.gatewayFactory = a.sessions.GatewayFactory()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return nil
}

func (a *app) getStore() (*store.Store, error) {
	return store.New(a.cfg.DatabasePath(a.configDir))
}

func (a *app) ledgerOptions(out io.Writer) []ledger.Option {
	return []ledger.Option{
		ledger.WithOutput(out),
		ledger.WithClock(a.now),
		ledger.WithLogger(log.Logger),
		ledger.WithGatewayFactory(a.gatewayFactory),
	}
}

// update runs fn in a committed transaction on the ledger
func (a *app) update(cmd *cobra.Command, fn func(context.Context, *ledger.Ledger) error) error {
	s, err := a.getStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	return s.Update(ctx, func(l *ledger.Ledger) error {
		return fn(ctx, l)
	}, a.ledgerOptions(cmd.OutOrStdout())...)
}

// view runs fn on the ledger without saving
func (a *app) view(cmd *cobra.Command, fn func(context.Context, *ledger.Ledger) error) error {
	s, err := a.getStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	return s.View(ctx, func(l *ledger.Ledger) error {
		return fn(ctx, l)
	}, a.ledgerOptions(cmd.OutOrStdout())...)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, &domain.FormatError{Input: s, Reason: "dates use the YYYY-MM-DD format"}
	}
	return t, nil
}

// prompter asks questions on the command's input
type prompter struct {
	src io.Reader
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	src := cmd.InOrStdin()
	return &prompter{src: src, in: bufio.NewReader(src), out: cmd.OutOrStdout()}
}

func (p *prompter) line() (string, error) {
	s, err := p.in.ReadString('\n')
	if err != nil && !(err == io.EOF && s != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	answer, err := p.line()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (p *prompter) confirm(question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s]: ", question, hint)
	answer, err := p.line()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// password reads a password without echo when the input is a terminal
func (p *prompter) password(a *app, question string) (string, error) {
	if a.readPassword != nil {
		return a.readPassword(question)
	}
	if f, ok := p.src.(*os.File); ok && term.IsTerminal(int(f.Fd())) && p.in.Buffered() == 0 {
		fmt.Fprintf(p.out, "%s: ", question)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	fmt.Fprintf(p.out, "%s: ", question)
	return p.line()
}

func optionalID(cmd *cobra.Command, flag string, value int64) (*int64, error) {
	if !cmd.Flags().Changed(flag) {
		return nil, nil
	}
	if value <= 0 {
		return nil, &domain.FormatError{Input: strconv.FormatInt(value, 10), Reason: flag + " must be a positive id"}
	}
	return &value, nil
}
