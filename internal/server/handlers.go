package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/api"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
	"github.com/vidyavahini/vidyavahini/internal/runstore"
)

const (
	maxBodyBytes    = 1 << 20
	forbiddenDetail = "No agents available for your user role/level"
)

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, api.ErrorResponse{Detail: detail})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to VidyaVāhinī Agentic Backend"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) profile(r *http.Request) orchestrator.CallerProfile {
	return orchestrator.ParseProfile(r.Header.Get(api.HeaderUserRole), r.Header.Get(api.HeaderUserLevel), s.logger)
}

// decodeRunRequest reads and validates a run body. On failure it has already
// written the response.
func (s *Server) decodeRunRequest(w http.ResponseWriter, r *http.Request) (api.RunRequest, bool) {
	var req api.RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt cannot be empty or whitespace")
		return req, false
	}
	if utf8.RuneCountInString(req.Prompt) > s.maxPromptLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("prompt exceeds %d characters", s.maxPromptLength))
		return req, false
	}
	return req, true
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// runErrorStatus maps an orchestrator error to an HTTP status and detail.
func runErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrForbidden):
		return http.StatusForbidden, forbiddenDetail
	case errors.Is(err, orchestrator.ErrInvalidMode):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error: " + err.Error()
	}
}

// resultStatus maps a single worker result to an HTTP status. A cancellation
// caused by the request deadline is reported as a timeout.
func resultStatus(ctx context.Context, res agent.Result) int {
	switch res.Kind() {
	case "":
		return http.StatusOK
	case agent.KindInvalidInput:
		return http.StatusBadRequest
	case agent.KindForbidden:
		return http.StatusForbidden
	case agent.KindTimeout:
		return http.StatusGatewayTimeout
	case agent.KindCancelled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// runStatus maps the run context's final state to an HTTP status, message
// and record status.
func runStatus(ctx context.Context) (int, string, runstore.Status) {
	switch {
	case ctx.Err() == nil:
		return http.StatusOK, "Success", runstore.StatusCompleted
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Crew processing timed out", runstore.StatusCancelled
	default:
		return http.StatusServiceUnavailable, "Run cancelled", runstore.StatusCancelled
	}
}

func workerNames(workers []agent.Worker) []string {
	names := make([]string, len(workers))
	for i, w := range workers {
		names[i] = w.Name()
	}
	return names
}

// startRun records a new running run and returns its ID.
func (s *Server) startRun(profile orchestrator.CallerProfile, mode orchestrator.Mode, prompt string, workers []string) string {
	id := runstore.NewID()
	err := s.runs.Create(runstore.Record{
		ID:        id,
		Status:    runstore.StatusRunning,
		Mode:      mode,
		Profile:   profile,
		Prompt:    prompt,
		Workers:   workers,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("record run", "run_id", id, "error", err)
	}
	return id
}

func (s *Server) finishRun(id string, status runstore.Status, results map[string]agent.Result, errText string) {
	// The record may have been evicted by newer runs.
	if err := s.runs.Finish(id, status, results, errText); err != nil && !errors.Is(err, runstore.ErrNotFound) {
		s.logger.Error("finish run", "run_id", id, "error", err)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	eligible := s.orch.Eligible(s.profile(r))
	list := api.AgentList{Agents: make([]api.AgentInfo, 0, len(eligible))}
	for _, wk := range eligible {
		info := api.AgentInfo{Name: wk.Name(), Contract: wk.Contract()}
		if spec, ok := agent.Lookup(wk.Name()); ok {
			info.Role = spec.Role
			info.Goal = spec.Goal
		}
		list.Agents = append(list.Agents, info)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.orch.Worker(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown agent %q", name))
		return
	}
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}
	profile := s.profile(r)
	s.logger.Info("agent request", "agent", name, "client_ip", clientIP(r), "prompt", truncate(req.Prompt, 50))

	ctx, cancel := withTimeout(r.Context(), s.agentTimeout)
	defer cancel()

	id := s.startRun(profile, orchestrator.ModeSequential, req.Prompt, []string{name})
	results, err := s.orch.Run(ctx, CallerInputs(req.Prompt, req.Context), profile, orchestrator.ModeSequential,
		orchestrator.Only(name), orchestrator.WithDefaults(DefaultInputs(req.Prompt)))
	if err != nil {
		s.finishRun(id, runstore.StatusRejected, nil, err.Error())
		status, detail := runErrorStatus(err)
		writeError(w, status, detail)
		return
	}

	res := results[name]
	status := resultStatus(ctx, res)
	message := "Success"
	recStatus := runstore.StatusCompleted
	if !res.OK() {
		message = res.Failure().Message
	}
	if ctx.Err() != nil {
		recStatus = runstore.StatusCancelled
	}
	s.finishRun(id, recStatus, results, "")
	writeJSON(w, status, api.RunResponse{RunID: id, Results: results, Message: message})
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}
	mode, err := orchestrator.ParseMode(req.Mode, s.defaultMode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile := s.profile(r)
	s.logger.Info("run request", "client_ip", clientIP(r), "mode", mode, "role", profile.Role, "prompt", truncate(req.Prompt, 50))

	ctx, cancel := withTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	id := s.startRun(profile, mode, req.Prompt, workerNames(s.orch.Eligible(profile)))
	results, err := s.orch.Run(ctx, CallerInputs(req.Prompt, req.Context), profile, mode, orchestrator.WithDefaults(DefaultInputs(req.Prompt)))
	if err != nil {
		s.finishRun(id, runstore.StatusRejected, nil, err.Error())
		status, detail := runErrorStatus(err)
		writeError(w, status, detail)
		return
	}

	status, message, recStatus := runStatus(ctx)
	s.finishRun(id, recStatus, results, "")
	writeJSON(w, status, api.RunResponse{RunID: id, Results: results, Message: message})
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}
	mode, err := orchestrator.ParseMode(req.Mode, s.defaultMode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile := s.profile(r)
	eligible := s.orch.Eligible(profile)
	if len(eligible) == 0 {
		writeError(w, http.StatusForbidden, forbiddenDetail)
		return
	}

	ctx, cancel := withTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	id := s.startRun(profile, mode, req.Prompt, workerNames(eligible))
	reporter := orchestrator.NewProgressReporter(len(eligible))

	type outcome struct {
		results map[string]agent.Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := s.orch.Run(ctx, CallerInputs(req.Prompt, req.Context), profile, mode,
			orchestrator.WithDefaults(DefaultInputs(req.Prompt)), orchestrator.WithProgress(reporter.Emit))
		reporter.Close()
		done <- outcome{results, err}
	}()

	sse := api.NewSSEWriter(w, id)
	sse.Init()
	s.streamProgress(sse, id, reporter.Subscribe())
	if n := reporter.Dropped(); n > 0 {
		s.logger.Warn("progress events dropped", "run_id", id, "count", n)
	}

	out := <-done
	if out.err != nil {
		s.finishRun(id, runstore.StatusRejected, nil, out.err.Error())
		_, detail := runErrorStatus(out.err)
		_ = sse.WriteEvent(api.StreamEvent{Error: &api.ErrorResponse{Detail: detail}})
		return
	}
	_, message, recStatus := runStatus(ctx)
	s.finishRun(id, recStatus, out.results, "")
	_ = sse.WriteEvent(api.StreamEvent{Result: &api.RunResponse{RunID: id, Results: out.results, Message: message}})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := runstore.ListRequest{
		Status:    runstore.Status(q.Get("status")),
		PageToken: q.Get("pageToken"),
	}
	if role := q.Get("role"); role != "" {
		req.Role = orchestrator.ParseRole(role)
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pageSize %q", v))
			return
		}
		req.PageSize = n
	}

	resp, err := s.runs.List(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// streamProgress forwards progress events until the reporter closes, writing
// keep-alive comments while the run is quiet. After the client goes away the
// remaining events are drained and dropped.
func (s *Server) streamProgress(sse *api.SSEWriter, id string, events <-chan orchestrator.ProgressEvent) {
	ticker := time.NewTicker(api.KeepAliveInterval)
	defer ticker.Stop()

	writing := true
	for {
		var err error
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if writing {
				err = sse.WriteEvent(api.StreamEvent{Progress: &ev})
			}
		case <-ticker.C:
			if writing {
				err = sse.KeepAlive()
			}
		}
		if err != nil {
			s.logger.Warn("stream client gone", "run_id", id, "error", err)
			writing = false
		}
	}
}
