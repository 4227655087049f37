package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/vidyavahini/vidyavahini/internal/memory"
)

// Compile-time interface check.
var _ Worker = (*BaseWorker)(nil)

// Memory is the session document a ProcessFunc may read and mutate. Changes
// are flushed to the worker's memory.Store when the invocation ends.
type Memory map[string]any

// ProcessFunc is the capability a specialist worker provides. It receives the
// validated inputs and the worker's session memory. Returning an error whose
// chain contains a *Failure reports that Failure; any other error becomes an
// internal_error.
type ProcessFunc func(ctx context.Context, inputs Inputs, mem Memory) (Outputs, error)

// BaseWorker provides the shared invocation boilerplate for workers: input
// validation, panic recovery, error conversion and scoped memory handling.
// Specialist workers are built by handing NewBaseWorker a ProcessFunc.
type BaseWorker struct {
	name     string
	contract Contract
	process  ProcessFunc
	store    memory.Store
	logger   *slog.Logger

	// memSlot serialises the load, process and save cycle of invocations
	// sharing store.
	memSlot chan struct{}
}

// Option configures a BaseWorker.
type Option func(*BaseWorker)

// WithMemory attaches an exclusive memory store to the worker. Invocations
// of a worker with memory run one at a time so that none loses another's
// history.
func WithMemory(store memory.Store) Option {
	return func(b *BaseWorker) { b.store = store }
}

// WithLogger sets the worker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *BaseWorker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBaseWorker creates a BaseWorker with the given name, contract and process
// function.
func NewBaseWorker(name string, contract Contract, process ProcessFunc, opts ...Option) *BaseWorker {
	b := &BaseWorker{
		name:     name,
		contract: contract,
		process:  process,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("worker", name)
	if b.store != nil {
		b.memSlot = make(chan struct{}, 1)
	}
	return b
}

// Name returns the worker name.
func (b *BaseWorker) Name() string {
	return b.name
}

// Contract returns the worker's declared I/O.
func (b *BaseWorker) Contract() Contract {
	return b.contract
}

// Process validates inputs, runs the process function and converts every
// outcome, including panics, into a Result.
func (b *BaseWorker) Process(ctx context.Context, inputs Inputs) (res Result) {
	if missing := b.contract.Missing(inputs); len(missing) > 0 {
		return Fail(KindInvalidInput,
			fmt.Sprintf("missing required input: %s", strings.Join(missing, ", ")),
			map[string]any{"missing": missing})
	}

	if b.memSlot != nil {
		select {
		case b.memSlot <- struct{}{}:
			defer func() { <-b.memSlot }()
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Fail(KindTimeout, "timed out waiting for session memory", nil)
			}
			return Fail(KindCancelled, "cancelled waiting for session memory", nil)
		}
	}

	mem := b.openMemory(ctx)
	defer b.flushMemory(ctx, mem)

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("worker panicked", "panic", r)
			res = Fail(KindInternalError, fmt.Sprintf("panic: %v", r), map[string]any{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
		}
	}()

	if b.process == nil {
		return Fail(KindInternalError, "worker has no process function", nil)
	}

	outputs, err := b.process(ctx, inputs, mem)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return Fail(f.Kind, f.Message, f.Raw)
		}
		b.logger.Warn("worker failed", "error", err)
		return Fail(KindInternalError, err.Error(), map[string]any{"error": err.Error()})
	}
	return Success(outputs)
}

// openMemory loads the session document. A load failure is logged and the
// invocation proceeds with empty memory.
func (b *BaseWorker) openMemory(ctx context.Context) Memory {
	if b.store == nil {
		return Memory{}
	}
	doc, err := b.store.Load(ctx)
	if err != nil {
		b.logger.Warn("memory load failed", "error", err)
		return Memory{}
	}
	return Memory(doc)
}

// flushMemory saves the session document. It runs on every exit path and
// uses a context that survives caller cancellation.
func (b *BaseWorker) flushMemory(ctx context.Context, mem Memory) {
	if b.store == nil {
		return
	}
	if err := b.store.Save(context.WithoutCancel(ctx), map[string]any(mem)); err != nil {
		b.logger.Warn("memory save failed", "error", err)
	}
}
