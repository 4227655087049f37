// Package api holds the HTTP wire types shared by the server and client.
package api

import (
	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
)

// Request headers.
const (
	HeaderAPIKey    = "x-api-key"
	HeaderUserRole  = "x-user-role"
	HeaderUserLevel = "x-user-level"
)

// RunRequest is the body of POST /api/run and POST /api/agents/{name}.
type RunRequest struct {
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
	// Mode is "sequential" or "parallel". Empty uses the server default.
	Mode string `json:"mode,omitempty"`
}

// RunResponse carries one result per worker that was eligible for the run.
type RunResponse struct {
	RunID   string                  `json:"runId,omitempty"`
	Results map[string]agent.Result `json:"results"`
	Message string                  `json:"message"`
}

// ErrorResponse is the body of every non-2xx response that carries no
// results.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// AgentInfo describes a worker the caller may invoke.
type AgentInfo struct {
	Name     string         `json:"name"`
	Role     string         `json:"role,omitempty"`
	Goal     string         `json:"goal,omitempty"`
	Contract agent.Contract `json:"contract"`
}

// AgentList is the body of GET /api/agents.
type AgentList struct {
	Agents []AgentInfo `json:"agents"`
}

// StreamEvent is one Server-Sent Event on POST /api/run/stream. Exactly one
// of Progress, Result or Error is set.
type StreamEvent struct {
	Progress *orchestrator.ProgressEvent `json:"progress,omitempty"`
	Result   *RunResponse                `json:"result,omitempty"`
	Error    *ErrorResponse              `json:"error,omitempty"`

	// RunID and Err are filled in by ReadEvents. Err is set when a frame
	// cannot be decoded.
	RunID string `json:"-"`
	Err   error  `json:"-"`
}

// Final reports whether ev ends the stream.
func (ev StreamEvent) Final() bool {
	return ev.Result != nil || ev.Error != nil
}
