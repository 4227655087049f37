package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vidyavahini/vidyavahini/internal/client"
	"github.com/vidyavahini/vidyavahini/internal/config"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
)

// callerFlags identify the caller and, optionally, a remote server to call.
type callerFlags struct {
	Role   string
	Level  int
	Server string
	APIKey string
}

func (f *callerFlags) register(cmd *cobra.Command, defaultRole string) {
	cmd.Flags().StringVar(&f.Role, "role", defaultRole, "caller role: teacher or student")
	cmd.Flags().IntVar(&f.Level, "level", 0, "student level; omitted means no level")
	cmd.Flags().StringVar(&f.Server, "server", "", "base URL of a running server; empty runs in-process")
	cmd.Flags().StringVar(&f.APIKey, "api-key", "", "API key for --server (default: $"+config.EnvAPIKey+")")
}

// profile builds the caller profile. --level only counts when given.
func (f *callerFlags) profile(cmd *cobra.Command) orchestrator.CallerProfile {
	level := ""
	if cmd.Flags().Changed("level") {
		level = strconv.Itoa(f.Level)
	}
	return orchestrator.ParseProfile(f.Role, level, nil)
}

func (f *callerFlags) newClient(cmd *cobra.Command, opts ...client.Option) *client.Client {
	key := f.APIKey
	if key == "" {
		key = os.Getenv(config.EnvAPIKey)
	}
	opts = append([]client.Option{client.WithAPIKey(key), client.WithCaller(f.profile(cmd))}, opts...)
	return client.New(f.Server, opts...)
}
