package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/api"
	"github.com/vidyavahini/vidyavahini/internal/config"
	"github.com/vidyavahini/vidyavahini/internal/llm"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
	"github.com/vidyavahini/vidyavahini/internal/runstore"
)

// newCrew registers every catalogue worker backed by gen.
func newCrew(t *testing.T, gen llm.Generator, opts orchestrator.Options) *orchestrator.Orchestrator {
	t.Helper()
	workers, err := agent.NewRegistry().BuildAll(nil, agent.Deps{Generator: gen})
	require.NoError(t, err)
	o := orchestrator.New(opts)
	for _, w := range workers {
		require.NoError(t, o.Register(w))
	}
	return o
}

func testConfig() config.ServerConfig {
	cfg := config.Defaults().Server
	cfg.RateLimit = 0
	return cfg
}

func newTestServer(t *testing.T, o *orchestrator.Orchestrator, cfg config.ServerConfig) *httptest.Server {
	t.Helper()
	srv := New(Options{Orchestrator: o, Config: cfg})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var (
	teacher  = map[string]string{api.HeaderUserRole: "teacher"}
	student3 = map[string]string{api.HeaderUserRole: "student", api.HeaderUserLevel: "3"}
)

func keys(m map[string]agent.Result) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ---------------------------------------------------------------------------
// Operational endpoints
// ---------------------------------------------------------------------------

func TestHealthAndRoot(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	resp = do(t, ts, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["message"], "Welcome")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())
	do(t, ts, http.MethodGet, "/health", nil, nil)

	resp := do(t, ts, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `vidyavahini_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

// ---------------------------------------------------------------------------
// POST /api/run
// ---------------------------------------------------------------------------

func TestRun_TeacherGetsEveryTeacherWorker(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodPost, "/api/run", api.RunRequest{Prompt: "Plan a science lesson for grade 6"}, teacher)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[api.RunResponse](t, resp)
	assert.Equal(t, "Success", out.Message)
	assert.NotEmpty(t, out.RunID)
	assert.ElementsMatch(t, orchestrator.DefaultTiers().Teacher, keys(out.Results))
	assert.NotContains(t, out.Results, agent.NameGamification)
	for name, res := range out.Results {
		assert.True(t, res.OK(), "%s: %v", name, res.Failure())
	}
}

func TestRun_StudentBelowThresholdGetsBasicTier(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	for _, mode := range []string{"sequential", "parallel"} {
		t.Run(mode, func(t *testing.T) {
			resp := do(t, ts, http.MethodPost, "/api/run", api.RunRequest{Prompt: "plants", Mode: mode}, student3)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			out := decode[api.RunResponse](t, resp)
			assert.ElementsMatch(t, []string{agent.NameVoiceTutor, agent.NameStoryTeller, agent.NameQuiz}, keys(out.Results))
		})
	}
}

func TestRun_UnknownRoleForbidden(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodPost, "/api/run", api.RunRequest{Prompt: "hello"}, map[string]string{api.HeaderUserRole: "parent"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, forbiddenDetail, decode[api.ErrorResponse](t, resp).Detail)
}

func TestRun_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPromptLength = 10
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), cfg)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty prompt", api.RunRequest{Prompt: "   "}, "empty"},
		{"too long", api.RunRequest{Prompt: "explain plants to me"}, "exceeds 10"},
		{"bad mode", api.RunRequest{Prompt: "plants", Mode: "fanout"}, "invalid run mode"},
		{"bad body", "not an object", "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodPost, "/api/run", tt.body, teacher)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decode[api.ErrorResponse](t, resp).Detail, tt.want)
		})
	}
}

func TestRun_ContextOverridesDerivedInputs(t *testing.T) {
	seenCh := make(chan agent.Inputs, 1)
	w := agent.NewBaseWorker("echo", agent.Contract{}, func(_ context.Context, in agent.Inputs, _ agent.Memory) (agent.Outputs, error) {
		seenCh <- in
		return agent.Outputs{"ok": true}, nil
	})
	o := orchestrator.New(orchestrator.Options{Policy: orchestrator.AllowAll("echo")})
	require.NoError(t, o.Register(w))
	ts := newTestServer(t, o, testConfig())

	resp := do(t, ts, http.MethodPost, "/api/run", api.RunRequest{
		Prompt:  "history for grade 8",
		Context: map[string]any{"dialect": "Telugu"},
	}, teacher)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	seen := <-seenCh
	assert.Equal(t, "history", seen["topic"])
	assert.Equal(t, "8", seen["level"])
	assert.Equal(t, "Telugu", seen["dialect"])
}

func TestRun_SequentialPassesGeneratedPlanDownstream(t *testing.T) {
	var mu sync.Mutex
	var storyPrompts []string
	gen := llm.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Design a lesson on"):
			return `{"lesson_plan_json":{"title":"GENERATED_PLAN"}}`, nil
		case strings.Contains(prompt, "Write a story for grade"):
			mu.Lock()
			storyPrompts = append(storyPrompts, prompt)
			mu.Unlock()
		}
		return `{}`, nil
	})
	ts := newTestServer(t, newCrew(t, gen, orchestrator.Options{}), testConfig())

	tests := []struct {
		name    string
		context map[string]any
		want    string
		notWant string
	}{
		{"generated replaces derived", nil, "GENERATED_PLAN", "Introduction to Plants"},
		{"caller context wins", map[string]any{"lesson_plan_json": map[string]any{"title": "CALLER_PLAN"}}, "CALLER_PLAN", "GENERATED_PLAN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mu.Lock()
			storyPrompts = nil
			mu.Unlock()

			resp := do(t, ts, http.MethodPost, "/api/run", api.RunRequest{Prompt: "plants for grade 4", Mode: "sequential", Context: tt.context}, teacher)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			out := decode[api.RunResponse](t, resp)
			require.True(t, out.Results[agent.NameStoryTeller].OK())

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, storyPrompts, 1)
			assert.Contains(t, storyPrompts[0], tt.want)
			assert.NotContains(t, storyPrompts[0], tt.notWant)
		})
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "s3cret"
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), cfg)

	resp := do(t, ts, http.MethodPost, "/api/run", api.RunRequest{Prompt: "plants"}, teacher)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid API Key", decode[api.ErrorResponse](t, resp).Detail)

	resp = do(t, ts, http.MethodPost, "/api/run", api.RunRequest{Prompt: "plants"}, map[string]string{
		api.HeaderUserRole: "teacher",
		api.HeaderAPIKey:   "s3cret",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 2
	cfg.RateWindow = time.Minute
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), cfg)

	for range 2 {
		resp := do(t, ts, http.MethodPost, "/api/agents/quiz", api.RunRequest{Prompt: "plants"}, student3)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := do(t, ts, http.MethodPost, "/api/agents/quiz", api.RunRequest{Prompt: "plants"}, student3)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Read-only endpoints are not limited.
	resp = do(t, ts, http.MethodGet, "/api/agents", nil, student3)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ---------------------------------------------------------------------------
// Single-agent endpoints
// ---------------------------------------------------------------------------

func TestRunAgent_AllowedAndForbidden(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodPost, "/api/agents/quiz", api.RunRequest{Prompt: "plants"}, student3)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[api.RunResponse](t, resp)
	assert.Equal(t, []string{agent.NameQuiz}, keys(out.Results))

	resp = do(t, ts, http.MethodPost, "/api/agents/ask_me", api.RunRequest{Prompt: "why is the sky blue"}, student3)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/agents/nope", api.RunRequest{Prompt: "plants"}, teacher)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunAgent_StatusMapping(t *testing.T) {
	t.Run("invalid input", func(t *testing.T) {
		ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())
		resp := do(t, ts, http.MethodPost, "/api/agents/student_level_analytics", api.RunRequest{
			Prompt:  "progress",
			Context: map[string]any{"student_id": ""},
		}, teacher)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		out := decode[api.RunResponse](t, resp)
		assert.Equal(t, agent.KindInvalidInput, out.Results[agent.NameStudentLevelAnalytics].Kind())
	})

	t.Run("internal error", func(t *testing.T) {
		failing := llm.GeneratorFunc(func(context.Context, string) (string, error) {
			return "", errors.New("quota exhausted")
		})
		ts := newTestServer(t, newCrew(t, failing, orchestrator.Options{}), testConfig())
		resp := do(t, ts, http.MethodPost, "/api/agents/quiz", api.RunRequest{Prompt: "plants"}, teacher)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		out := decode[api.RunResponse](t, resp)
		assert.Equal(t, agent.KindInternalError, out.Results[agent.NameQuiz].Kind())
		assert.Contains(t, out.Message, "quota exhausted")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		slow := agent.NewBaseWorker("slow", agent.Contract{}, func(context.Context, agent.Inputs, agent.Memory) (agent.Outputs, error) {
			<-release
			return agent.Outputs{}, nil
		})
		o := orchestrator.New(orchestrator.Options{
			Policy:           orchestrator.AllowAll("slow"),
			TimeoutPerWorker: 50 * time.Millisecond,
		})
		require.NoError(t, o.Register(slow))
		ts := newTestServer(t, o, testConfig())

		resp := do(t, ts, http.MethodPost, "/api/agents/slow", api.RunRequest{Prompt: "plants"}, teacher)
		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
		out := decode[api.RunResponse](t, resp)
		assert.Equal(t, agent.KindTimeout, out.Results["slow"].Kind())
	})
}

func TestListAgents_FilteredByCaller(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodGet, "/api/agents", nil, student3)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[api.AgentList](t, resp)

	var names []string
	for _, a := range list.Agents {
		names = append(names, a.Name)
		assert.NotEmpty(t, a.Role)
		assert.NotEmpty(t, a.Contract.Produces)
	}
	assert.ElementsMatch(t, []string{agent.NameVoiceTutor, agent.NameStoryTeller, agent.NameQuiz}, names)

	resp = do(t, ts, http.MethodGet, "/api/agents", nil, nil)
	assert.Empty(t, decode[api.AgentList](t, resp).Agents)
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func TestRunStream(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodPost, "/api/run/stream", api.RunRequest{Prompt: "plants", Mode: "parallel"}, student3)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	terminal := map[string]orchestrator.State{}
	var final *api.StreamEvent
	for ev := range api.ReadEvents(ctx, resp.Body) {
		require.NoError(t, ev.Err)
		require.NotEmpty(t, ev.RunID)
		if ev.Final() {
			final = &ev
			continue
		}
		require.NotNil(t, ev.Progress)
		if ev.Progress.State.Terminal() {
			terminal[ev.Progress.Worker] = ev.Progress.State
		}
	}

	require.NotNil(t, final)
	require.NotNil(t, final.Result)
	assert.Equal(t, final.Result.RunID, final.RunID)
	assert.Len(t, final.Result.Results, 3)
	assert.Len(t, terminal, 3)
	for name, state := range terminal {
		assert.Equal(t, orchestrator.StateSucceeded, state, name)
	}
}

func TestRunStream_ForbiddenBeforeStreaming(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodPost, "/api/run/stream", api.RunRequest{Prompt: "plants"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}

// ---------------------------------------------------------------------------
// Run history
// ---------------------------------------------------------------------------

func TestRuns_RecordedAndListed(t *testing.T) {
	ts := newTestServer(t, newCrew(t, llm.Offline{}, orchestrator.Options{}), testConfig())

	resp := do(t, ts, http.MethodPost, "/api/agents/quiz", api.RunRequest{Prompt: "plants"}, student3)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runID := decode[api.RunResponse](t, resp).RunID

	do(t, ts, http.MethodPost, "/api/run", api.RunRequest{Prompt: "plants"}, map[string]string{api.HeaderUserRole: "guest"})

	resp = do(t, ts, http.MethodGet, "/api/runs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[runstore.ListResponse](t, resp)
	require.Equal(t, 2, list.TotalSize)
	assert.Equal(t, runstore.StatusCompleted, list.Runs[0].Status)
	assert.Equal(t, runstore.StatusRejected, list.Runs[1].Status)

	resp = do(t, ts, http.MethodGet, "/api/runs?role=student", nil, nil)
	assert.Equal(t, 1, decode[runstore.ListResponse](t, resp).TotalSize)

	resp = do(t, ts, http.MethodGet, "/api/runs/"+runID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[runstore.Record](t, resp)
	assert.Equal(t, []string{agent.NameQuiz}, rec.Workers)
	assert.True(t, rec.Results[agent.NameQuiz].OK())
	assert.NotNil(t, rec.FinishedAt)

	resp = do(t, ts, http.MethodGet, "/api/runs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/runs?pageSize=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
