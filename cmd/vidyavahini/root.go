package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	ConfigDir string
	LogLevel  string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "vidyavahini",
		Short: "Role-aware education agents for teachers and students",
		Long: `VidyaVāhinī runs a catalogue of education agents (lesson planner, quiz,
story teller, voice tutor and more) for a caller identified by role and level.

The orchestrator decides which agents the caller may use, runs them one after
another or in parallel, bounds each with a timeout and reports one result per
agent. Serve it over HTTP, expose it to MCP clients over stdio, or run it once
from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigDir, "config", ".", "directory holding vidyavahini.yml and .env")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(&flags))
	root.AddCommand(newRunCmd(&flags))
	root.AddCommand(newMCPCmd(&flags))
	root.AddCommand(newAgentsCmd(&flags))
	root.AddCommand(newVersionCmd())
	return root
}
