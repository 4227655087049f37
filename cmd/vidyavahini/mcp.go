package main

import (
	"github.com/spf13/cobra"

	"github.com/vidyavahini/vidyavahini/internal/mcptools"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agents as MCP tools over stdio",
		Long: `Serve the run_agents and list_agents tools to an MCP client over stdin and
stdout. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			svc := mcptools.NewService(a.orch, a.cfg.Mode(), a.cfg.Server.RequestTimeout, a.logger)
			return mcptools.RunStdio(cmd.Context(), mcptools.NewMCPServer(svc, version))
		},
	}
}
