package main

import (
	"fmt"
	"strings"

	"github.com/pbaille/ots/internal/api"
	"github.com/pbaille/ots/internal/config"
	"github.com/spf13/cobra"
)

func setupCmd(a *app) *cobra.Command {
	var advanced bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up basic configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			cfg := a.cfg

			host, err := p.ask("Odoo host to connect to", cfg.OdooHostname)
			if err != nil {
				return err
			}
			cfg.OdooHostname = host
			cfg.AutoSync = false

			if advanced {
				if cfg.SSL, err = p.confirm("Use SSL for the connection?", true); err != nil {
					return err
				}
				filestore, err := p.ask("Name of the local database file that stores the timesheets. "+
					"Several files keep separate sets of timesheets", cfg.Filestore)
				if err != nil {
					return err
				}
				if !strings.HasSuffix(filestore, ".db") {
					filestore += ".db"
				}
				cfg.Filestore = filestore
			}

			if err := config.Save(a.configDir, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration saved")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&advanced, "advanced", "a", false, "run a full setup, including advanced options")
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON view of the timesheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			server := api.New(s, addr)
			return server.Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8080", "server address")
	return cmd
}
