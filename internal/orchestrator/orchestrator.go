// Package orchestrator runs a filtered set of agent workers against a shared
// input context and aggregates one Result per worker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

// Orchestrator-level errors. They are fatal to a Run call and never appear in
// the per-worker result map.
var (
	ErrDuplicateName = errors.New("duplicate worker name")
	ErrForbidden     = errors.New("no eligible workers for caller")
	ErrInvalidMode   = errors.New("invalid run mode")
)

// Mode selects how eligible workers are dispatched.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// ParseMode converts s to a Mode. The empty string selects def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return def, nil
	case ModeSequential, ModeParallel:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// DefaultWorkerTimeout bounds a single worker invocation when Options leaves
// it unset.
const DefaultWorkerTimeout = 60 * time.Second

// Options configures an Orchestrator.
type Options struct {
	// Policy decides which workers a caller may invoke. Nil uses
	// DefaultPolicy.
	Policy AccessPolicy

	// TimeoutPerWorker bounds every invocation. Zero uses
	// DefaultWorkerTimeout; a negative value disables the bound.
	TimeoutPerWorker time.Duration

	// MaxParallel caps concurrent invocations in parallel mode. Zero starts
	// one goroutine per eligible worker.
	MaxParallel int

	// FilterInputs hands each worker only the keys its contract accepts.
	FilterInputs bool

	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Orchestrator owns an ordered collection of workers. The worker set is
// fixed once serving starts; Run may be called concurrently.
type Orchestrator struct {
	mu      sync.RWMutex
	workers []agent.Worker
	index   map[string]int

	policy       AccessPolicy
	timeout      time.Duration
	maxParallel  int
	filterInputs bool
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
}

// New creates an empty Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		index:        make(map[string]int),
		policy:       opts.Policy,
		timeout:      opts.TimeoutPerWorker,
		maxParallel:  opts.MaxParallel,
		filterInputs: opts.FilterInputs,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
	}
	if o.policy == nil {
		o.policy = DefaultPolicy()
	}
	if o.timeout == 0 {
		o.timeout = DefaultWorkerTimeout
	}
	if o.maxParallel < 0 {
		o.maxParallel = 0
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("vidyavahini/orchestrator")
	}
	return o
}

// Register appends w to the worker list. A name collision returns
// ErrDuplicateName and leaves the set unchanged.
func (o *Orchestrator) Register(w agent.Worker) error {
	if w == nil {
		return errors.New("register: nil worker")
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	name := w.Name()
	if _, exists := o.index[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateName)
	}
	o.index[name] = len(o.workers)
	o.workers = append(o.workers, w)
	return nil
}

// Workers returns the registered workers in registration order.
func (o *Orchestrator) Workers() []agent.Worker {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]agent.Worker, len(o.workers))
	copy(out, o.workers)
	return out
}

// Worker returns the registered worker called name.
func (o *Orchestrator) Worker(name string) (agent.Worker, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	i, ok := o.index[name]
	if !ok {
		return nil, false
	}
	return o.workers[i], true
}

// Eligible returns the registered workers the profile may invoke, in
// registration order.
func (o *Orchestrator) Eligible(profile CallerProfile) []agent.Worker {
	allowed := make(map[string]bool)
	for _, name := range o.policy(profile) {
		allowed[name] = true
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []agent.Worker
	for _, w := range o.workers {
		if allowed[w.Name()] {
			out = append(out, w)
		}
	}
	return out
}

// RunOption customises a single Run call.
type RunOption func(*runConfig)

type runConfig struct {
	only       map[string]bool
	defaults   agent.Inputs
	onProgress func(ProgressEvent)
}

// Only restricts the run to the named workers. The access policy still
// applies: a name the caller may not invoke is not run.
func Only(names ...string) RunOption {
	return func(rc *runConfig) {
		rc.only = make(map[string]bool, len(names))
		for _, n := range names {
			rc.only[n] = true
		}
	}
}

// WithDefaults supplies fallback inputs for the run. They sit below both the
// caller's inputs and, in sequential mode, the outputs of earlier workers.
func WithDefaults(defaults agent.Inputs) RunOption {
	return func(rc *runConfig) { rc.defaults = defaults }
}

// WithProgress registers a callback for worker state transitions. It is
// called from worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(ProgressEvent)) RunOption {
	return func(rc *runConfig) { rc.onProgress = fn }
}

// Run invokes every eligible worker and returns one Result per worker.
//
// The eligible set is the access policy's answer for profile intersected
// with the registered workers. An empty set fails with ErrForbidden before
// any worker runs. Each invocation is bounded by the per-worker timeout; a
// failing or slow worker never affects the others. When ctx is cancelled no
// further workers are dispatched and Run returns promptly, reporting
// cancelled for every worker without a result.
func (o *Orchestrator) Run(ctx context.Context, inputs agent.Inputs, profile CallerProfile, mode Mode, opts ...RunOption) (map[string]agent.Result, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	if mode != ModeSequential && mode != ModeParallel {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	eligible := o.Eligible(profile)
	if rc.only != nil {
		filtered := eligible[:0:0]
		for _, w := range eligible {
			if rc.only[w.Name()] {
				filtered = append(filtered, w)
			}
		}
		eligible = filtered
	}
	if len(eligible) == 0 {
		o.logger.Warn("no eligible workers", "role", profile.Role, "level", profile.LevelString())
		o.metrics.observeRun(mode, "forbidden", 0)
		return nil, fmt.Errorf("role %q level %s: %w", profile.Role, profile.LevelString(), ErrForbidden)
	}
	if inputs == nil {
		inputs = agent.Inputs{}
	}
	base := inputs
	if len(rc.defaults) > 0 {
		base = rc.defaults.Clone()
		for k, v := range inputs {
			base[k] = v
		}
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("caller.role", string(profile.Role)),
		attribute.Int("workers.eligible", len(eligible)),
	))
	defer span.End()

	r := &run{o: o, emit: rc.onProgress}
	for _, w := range eligible {
		r.progress(w.Name(), StatePending, nil, 0)
	}

	start := time.Now()
	o.logger.Info("run started", "mode", mode, "role", profile.Role, "workers", len(eligible))

	var results map[string]agent.Result
	switch mode {
	case ModeSequential:
		results = r.sequential(ctx, eligible, base, inputs)
	case ModeParallel:
		results = r.parallel(ctx, eligible, base)
	}

	outcome := "completed"
	if ctx.Err() != nil {
		outcome = "cancelled"
		span.SetStatus(codes.Error, "cancelled")
	}
	o.metrics.observeRun(mode, outcome, time.Since(start))
	o.logger.Info("run finished", "mode", mode, "outcome", outcome, "duration", time.Since(start))
	return results, nil
}

// inputsFor builds the input map a worker sees.
func (o *Orchestrator) inputsFor(w agent.Worker, inputs agent.Inputs) agent.Inputs {
	if o.filterInputs {
		return w.Contract().Filter(inputs)
	}
	return inputs.Clone()
}
