// Package client is a Go client for the VidyaVāhinī HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vidyavahini/vidyavahini/internal/api"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
	"github.com/vidyavahini/vidyavahini/internal/runstore"
)

// DefaultTimeout covers the server's default crew timeout with some headroom.
const DefaultTimeout = 150 * time.Second

// Client talks to one server.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	profile orchestrator.CallerProfile
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. It bounds streams too.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithCaller sends the caller's role and level headers.
func WithCaller(p orchestrator.CallerProfile) Option {
	return func(c *Client) {
		c.profile = p
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPError is returned for a non-2xx response. Response is set when the
// server still reported per-worker results, as it does for timeouts.
type HTTPError struct {
	StatusCode int
	Detail     string
	Response   *api.RunResponse
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("vidyavahini: HTTP %d: %s", e.StatusCode, e.Detail)
}

// Run runs every worker the caller may invoke.
func (c *Client) Run(ctx context.Context, req api.RunRequest) (*api.RunResponse, error) {
	var out api.RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/run", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunAgent runs a single named worker.
func (c *Client) RunAgent(ctx context.Context, name string, req api.RunRequest) (*api.RunResponse, error) {
	var out api.RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/agents/"+url.PathEscape(name), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stream starts a run and returns its progress events. The last event on
// the channel is the final result or error.
func (c *Client) Stream(ctx context.Context, req api.RunRequest) (<-chan api.StreamEvent, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/run/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vidyavahini: stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, httpError(resp.StatusCode, body)
	}
	return api.ReadEvents(ctx, resp.Body), nil
}

// Agents lists the workers the caller may invoke.
func (c *Client) Agents(ctx context.Context) (*api.AgentList, error) {
	var out api.AgentList
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Runs lists recent runs.
func (c *Client) Runs(ctx context.Context, req runstore.ListRequest) (*runstore.ListResponse, error) {
	q := url.Values{}
	if req.Status != "" {
		q.Set("status", string(req.Status))
	}
	if req.Role != "" {
		q.Set("role", string(req.Role))
	}
	if req.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(req.PageSize))
	}
	if req.PageToken != "" {
		q.Set("pageToken", req.PageToken)
	}
	path := "/api/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out runstore.ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun returns one run record.
func (c *Client) GetRun(ctx context.Context, id string) (*runstore.Record, error) {
	var out runstore.Record
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("vidyavahini: marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("vidyavahini: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(api.HeaderAPIKey, c.apiKey)
	}
	if c.profile.Role != "" {
		req.Header.Set(api.HeaderUserRole, string(c.profile.Role))
	}
	if c.profile.Level != nil {
		req.Header.Set(api.HeaderUserLevel, strconv.Itoa(*c.profile.Level))
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vidyavahini: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vidyavahini: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpError(resp.StatusCode, data)
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("vidyavahini: decode response: %w", err)
		}
	}
	return nil
}

// httpError builds an HTTPError from an error body. Both the detail shape
// and the run-response shape are recognised.
func httpError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status, Detail: strings.TrimSpace(string(body))}

	var detail api.ErrorResponse
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		e.Detail = detail.Detail
		return e
	}
	var run api.RunResponse
	if json.Unmarshal(body, &run) == nil && run.Results != nil {
		e.Detail = run.Message
		e.Response = &run
	}
	return e
}
