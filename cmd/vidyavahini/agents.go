package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/api"
)

func newAgentsCmd(flags *globalFlags) *cobra.Command {
	var (
		caller  callerFlags
		asJSON  bool
		showAll bool
	)

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agents a caller may run",
		Long: `List the agents a teacher or student may run, with the inputs they need and
the outputs they produce. --all lists every registered agent regardless of
role.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []api.AgentInfo
			if caller.Server != "" {
				resp, err := caller.newClient(cmd).Agents(cmd.Context())
				if err != nil {
					return err
				}
				list = resp.Agents
			} else {
				a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.close()

				workers := a.orch.Workers()
				if !showAll {
					workers = a.orch.Eligible(caller.profile(cmd))
				}
				for _, w := range workers {
					list = append(list, describe(w))
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(api.AgentList{Agents: list})
			}
			return printAgents(out, list)
		},
	}

	caller.register(cmd, "teacher")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&showAll, "all", false, "list every registered agent")
	return cmd
}

func describe(w agent.Worker) api.AgentInfo {
	info := api.AgentInfo{Name: w.Name(), Contract: w.Contract()}
	if spec, ok := agent.Lookup(w.Name()); ok {
		info.Role = spec.Role
		info.Goal = spec.Goal
	}
	return info
}

func printAgents(w io.Writer, list []api.AgentInfo) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No agents available for this role and level.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tREQUIRES\tPRODUCES")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, joinOrDash(a.Contract.Requires), joinOrDash(a.Contract.Produces))
	}
	return tw.Flush()
}

func joinOrDash(keys []string) string {
	if len(keys) == 0 {
		return "-"
	}
	return strings.Join(keys, ",")
}
