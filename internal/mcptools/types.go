package mcptools

import (
	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/api"
)

// --- MCP Tool Types ---
// The MCP Go SDK derives each tool's JSON schema from these structs.

// RunAgentsInput is the input for the run_agents MCP tool.
type RunAgentsInput struct {
	Prompt  string         `json:"prompt" jsonschema:"the teacher or student request"`
	Role    string         `json:"role" jsonschema:"caller role: teacher or student"`
	Level   *int           `json:"level,omitempty" jsonschema:"student level; unlocks advanced agents above the threshold"`
	Mode    string         `json:"mode,omitempty" jsonschema:"sequential or parallel (default: server setting)"`
	Agents  []string       `json:"agents,omitempty" jsonschema:"restrict the run to these agents (default: every agent the caller may use)"`
	Context map[string]any `json:"context,omitempty" jsonschema:"extra inputs that override the values derived from the prompt"`
}

// WorkerError is the failure half of a WorkerResult.
type WorkerError struct {
	Kind    agent.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// WorkerResult is one agent's outcome.
type WorkerResult struct {
	Status  agent.Status   `json:"status"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Error   *WorkerError   `json:"error,omitempty"`
}

// RunAgentsOutput is the result of the run_agents MCP tool.
type RunAgentsOutput struct {
	Results map[string]WorkerResult `json:"results"`
	// Succeeded counts the agents that returned outputs.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ListAgentsInput is the input for the list_agents MCP tool.
type ListAgentsInput struct {
	Role  string `json:"role" jsonschema:"caller role: teacher or student"`
	Level *int   `json:"level,omitempty" jsonschema:"student level"`
}

// ListAgentsOutput is the result of the list_agents MCP tool.
type ListAgentsOutput struct {
	Agents []api.AgentInfo `json:"agents"`
}

func toWorkerResult(res agent.Result) WorkerResult {
	out := WorkerResult{Status: res.Status()}
	if f := res.Failure(); f != nil {
		out.Error = &WorkerError{Kind: f.Kind, Message: f.Message}
		return out
	}
	out.Outputs = res.Outputs()
	return out
}
