package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/api"
	"github.com/vidyavahini/vidyavahini/internal/client"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
	"github.com/vidyavahini/vidyavahini/internal/server"
)

type runFlags struct {
	caller  callerFlags
	mode    string
	agents  []string
	context map[string]string
	asJSON  bool
	quiet   bool
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var rf runFlags

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run the agents for one prompt",
		Long: `Run every agent the caller may use for one prompt and print one result per
agent. Progress goes to stderr and results to stdout.

With --server the run happens on a remote server; otherwise the agents run
in-process using the local configuration.`,
		Example: `  vidyavahini run --role student --level 4 "plants for grade 4"
  vidyavahini run --agent quiz --context topic=fractions "quiz me"
  vidyavahini run --server http://localhost:8000 --mode parallel "animals"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt cannot be empty or whitespace")
			}

			progress := func(ev orchestrator.ProgressEvent) {
				if !rf.quiet {
					fmt.Fprintln(cmd.ErrOrStderr(), orchestrator.FormatProgress(ev))
				}
			}

			var (
				results map[string]agent.Result
				err     error
			)
			if rf.caller.Server != "" {
				results, err = runRemote(cmd, &rf, prompt, progress)
			} else {
				results, err = runLocal(cmd, flags, &rf, prompt, progress)
			}
			if results != nil {
				if perr := printResults(cmd.OutOrStdout(), results, rf.asJSON); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	rf.caller.register(cmd, "teacher")
	cmd.Flags().StringVar(&rf.mode, "mode", "", "sequential or parallel (default: orchestrator.defaultMode)")
	cmd.Flags().StringSliceVar(&rf.agents, "agent", nil, "restrict the run to these agents")
	cmd.Flags().StringToStringVar(&rf.context, "context", nil, "input overrides as key=value pairs")
	cmd.Flags().BoolVar(&rf.asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVarP(&rf.quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func (rf *runFlags) overrides() map[string]any {
	if len(rf.context) == 0 {
		return nil
	}
	out := make(map[string]any, len(rf.context))
	for k, v := range rf.context {
		out[k] = v
	}
	return out
}

func runLocal(cmd *cobra.Command, flags *globalFlags, rf *runFlags, prompt string, progress func(orchestrator.ProgressEvent)) (map[string]agent.Result, error) {
	a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer a.close()

	mode, err := orchestrator.ParseMode(rf.mode, a.cfg.Mode())
	if err != nil {
		return nil, err
	}

	profile := rf.caller.profile(cmd)
	reporter := orchestrator.NewProgressReporter(len(a.orch.Eligible(profile)))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range reporter.Subscribe() {
			progress(ev)
		}
	}()

	opts := []orchestrator.RunOption{
		orchestrator.WithDefaults(server.DefaultInputs(prompt)),
		orchestrator.WithProgress(reporter.Emit),
	}
	if len(rf.agents) > 0 {
		opts = append(opts, orchestrator.Only(rf.agents...))
	}

	ctx := cmd.Context()
	if d := a.cfg.Server.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	results, err := a.orch.Run(ctx, server.CallerInputs(prompt, rf.overrides()), profile, mode, opts...)
	reporter.Close()
	<-done
	if errors.Is(err, orchestrator.ErrForbidden) {
		return nil, errors.New("no agents available for this role and level")
	}
	return results, err
}

func runRemote(cmd *cobra.Command, rf *runFlags, prompt string, progress func(orchestrator.ProgressEvent)) (map[string]agent.Result, error) {
	c := rf.caller.newClient(cmd)
	req := api.RunRequest{Prompt: prompt, Context: rf.overrides(), Mode: rf.mode}

	switch len(rf.agents) {
	case 0:
	case 1:
		resp, err := c.RunAgent(cmd.Context(), rf.agents[0], req)
		return remoteResults(resp, err)
	default:
		return nil, errors.New("--server runs either every eligible agent or exactly one --agent")
	}

	events, err := c.Stream(cmd.Context(), req)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		switch {
		case ev.Err != nil:
			return nil, ev.Err
		case ev.Progress != nil:
			progress(*ev.Progress)
		case ev.Result != nil:
			return ev.Result.Results, nil
		case ev.Error != nil:
			return nil, errors.New(ev.Error.Detail)
		}
	}
	return nil, errors.New("stream ended without a result")
}

// remoteResults keeps the results a non-2xx run response still carries.
func remoteResults(resp *api.RunResponse, err error) (map[string]agent.Result, error) {
	if err == nil {
		return resp.Results, nil
	}
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) && httpErr.Response != nil {
		return httpErr.Response.Results, err
	}
	return nil, err
}

func printResults(w io.Writer, results map[string]agent.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := results[name]
		fmt.Fprintf(w, "== %s (%s)\n", name, res.Status())
		if f := res.Failure(); f != nil {
			fmt.Fprintf(w, "%s: %s\n\n", f.Kind, f.Message)
			continue
		}
		body, err := json.MarshalIndent(res.Outputs(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s outputs: %w", name, err)
		}
		fmt.Fprintf(w, "%s\n\n", body)
	}
	return nil
}
