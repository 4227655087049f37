package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

// run holds the state of a single Run call.
type run struct {
	o    *Orchestrator
	emit func(ProgressEvent)
}

func (r *run) progress(worker string, state State, res *agent.Result, elapsed time.Duration) {
	if r.emit == nil {
		return
	}
	ev := ProgressEvent{Worker: worker, State: state, Elapsed: elapsed}
	if res != nil && !res.OK() {
		ev.Kind = res.Kind()
		ev.Message = res.Failure().Message
	}
	r.emit(ev)
}

// invoke runs one worker under the per-worker timeout.
//
// The worker context is detached from ctx: cancelling the run stops the wait
// but the invocation keeps running in the background until it finishes or
// its own deadline expires.
func (r *run) invoke(ctx context.Context, w agent.Worker, inputs agent.Inputs) agent.Result {
	name := w.Name()
	o := r.o

	wctx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if o.timeout > 0 {
		wctx, cancel = context.WithTimeout(wctx, o.timeout)
	} else {
		wctx, cancel = context.WithCancel(wctx)
	}
	wctx, span := o.tracer.Start(wctx, "worker.process", trace.WithAttributes(attribute.String("worker", name)))

	r.progress(name, StateRunning, nil, 0)
	o.metrics.inflightAdd(1)
	start := time.Now()

	done := make(chan agent.Result, 1)
	go func() {
		res := safeProcess(wctx, w, inputs)
		o.metrics.inflightAdd(-1)
		done <- res
		cancel()
	}()

	var res agent.Result
	select {
	case res = <-done:
	case <-wctx.Done():
		select {
		case res = <-done:
		default:
			res = agent.Failf(agent.KindTimeout, "%s exceeded %s", name, o.timeout)
		}
	case <-ctx.Done():
		select {
		case res = <-done:
		default:
			res = agent.Fail(agent.KindCancelled, fmt.Sprintf("%s cancelled: %v", name, ctx.Err()), nil)
		}
	}

	elapsed := time.Since(start)
	r.finish(name, res, elapsed)
	if !res.OK() {
		span.SetStatus(codes.Error, string(res.Kind()))
	}
	span.End()
	return res
}

// finish reports the terminal state of an invocation.
func (r *run) finish(name string, res agent.Result, elapsed time.Duration) {
	state := stateOf(res)
	r.progress(name, state, &res, elapsed)
	r.o.metrics.observeWorker(name, state, elapsed)

	log := r.o.logger.With("worker", name, "state", state, "elapsed", elapsed)
	if res.OK() {
		log.Debug("worker finished")
	} else {
		log.Warn("worker did not succeed", "kind", res.Kind(), "message", res.Failure().Message)
	}
}

// cancelled records a worker that was never dispatched.
func (r *run) cancelled(ctx context.Context, name string) agent.Result {
	res := agent.Fail(agent.KindCancelled, fmt.Sprintf("%s not started: %v", name, context.Cause(ctx)), nil)
	r.progress(name, StateCancelled, &res, 0)
	r.o.metrics.observeWorker(name, StateCancelled, 0)
	return res
}

// safeProcess calls w.Process and converts a panic into an internal_error.
// Workers built on agent.BaseWorker already recover; this covers any other
// Worker implementation.
func safeProcess(ctx context.Context, w agent.Worker, inputs agent.Inputs) (res agent.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = agent.Fail(agent.KindInternalError, fmt.Sprintf("panic: %v", p), map[string]any{
				"panic": fmt.Sprint(p),
				"stack": string(debug.Stack()),
			})
		}
	}()
	return w.Process(ctx, inputs)
}
