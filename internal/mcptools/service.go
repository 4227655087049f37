package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/api"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
	"github.com/vidyavahini/vidyavahini/internal/server"
)

// Service handles MCP tool calls by running the orchestrator in-process.
type Service struct {
	orch        *orchestrator.Orchestrator
	defaultMode orchestrator.Mode
	timeout     time.Duration
	logger      *slog.Logger
}

// NewService creates a Service. A zero timeout leaves runs bounded only by
// the per-worker timeout.
func NewService(orch *orchestrator.Orchestrator, defaultMode orchestrator.Mode, timeout time.Duration, logger *slog.Logger) *Service {
	if defaultMode == "" {
		defaultMode = orchestrator.ModeSequential
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orch: orch, defaultMode: defaultMode, timeout: timeout, logger: logger}
}

func profileOf(role string, level *int) orchestrator.CallerProfile {
	p := orchestrator.CallerProfile{Role: orchestrator.ParseRole(role)}
	if level != nil {
		l := *level
		p.Level = &l
	}
	return p
}

// RunAgents runs the agents the caller may use and reports one result each.
func (s *Service) RunAgents(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunAgentsInput,
) (*mcp.CallToolResult, RunAgentsOutput, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, RunAgentsOutput{}, fmt.Errorf("prompt is required")
	}
	mode, err := orchestrator.ParseMode(input.Mode, s.defaultMode)
	if err != nil {
		return nil, RunAgentsOutput{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	opts := []orchestrator.RunOption{orchestrator.WithDefaults(server.DefaultInputs(input.Prompt))}
	if len(input.Agents) > 0 {
		opts = append(opts, orchestrator.Only(input.Agents...))
	}
	profile := profileOf(input.Role, input.Level)
	results, err := s.orch.Run(ctx, server.CallerInputs(input.Prompt, input.Context), profile, mode, opts...)
	if err != nil {
		return nil, RunAgentsOutput{}, err
	}

	out := RunAgentsOutput{Results: make(map[string]WorkerResult, len(results))}
	for name, res := range results {
		out.Results[name] = toWorkerResult(res)
		if res.OK() {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	s.logger.Info("mcp run finished", "role", profile.Role, "succeeded", out.Succeeded, "failed", out.Failed)
	return nil, out, nil
}

// ListAgents reports the agents the caller may use.
func (s *Service) ListAgents(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListAgentsInput,
) (*mcp.CallToolResult, ListAgentsOutput, error) {
	eligible := s.orch.Eligible(profileOf(input.Role, input.Level))
	out := ListAgentsOutput{Agents: make([]api.AgentInfo, 0, len(eligible))}
	for _, w := range eligible {
		info := api.AgentInfo{Name: w.Name(), Contract: w.Contract()}
		if spec, ok := agent.Lookup(w.Name()); ok {
			info.Role = spec.Role
			info.Goal = spec.Goal
		}
		out.Agents = append(out.Agents, info)
	}
	return nil, out, nil
}
