package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/vidyavahini/vidyavahini/internal/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		addr  string
		grace time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(server.Options{
				Orchestrator: a.orch,
				Config:       a.cfg.Server,
				DefaultMode:  a.cfg.Mode(),
				Registry:     a.registry,
				Logger:       a.logger,
			})
			return srv.ListenAndServe(cmd.Context(), addr, grace)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")
	cmd.Flags().DurationVar(&grace, "grace", 15*time.Second, "how long to wait for in-flight requests on shutdown")
	return cmd
}
