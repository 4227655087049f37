package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

// State is the lifecycle state of one worker invocation.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// stateOf maps a Result to its terminal state.
func stateOf(res agent.Result) State {
	switch {
	case res.OK():
		return StateSucceeded
	case res.Kind() == agent.KindTimeout:
		return StateTimedOut
	case res.Kind() == agent.KindCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}

// ProgressEvent reports a worker state transition during a run.
type ProgressEvent struct {
	Worker  string          `json:"worker"`
	State   State           `json:"state"`
	Kind    agent.ErrorKind `json:"kind,omitempty"`
	Message string          `json:"message,omitempty"`
	Elapsed time.Duration   `json:"elapsedNs,omitempty"`
}

// EventsPerWorker is the number of progress events one worker produces in a
// run: pending, running and a terminal state.
const EventsPerWorker = 3

// ProgressReporter buffers the progress events of a run for one consumer.
// Emit never blocks the run; events that do not fit are counted and dropped.
type ProgressReporter struct {
	mu      sync.Mutex
	ch      chan ProgressEvent
	closed  bool
	dropped atomic.Int64
}

// NewProgressReporter creates a ProgressReporter that holds the events of a
// run over workers workers without dropping any. workers <= 0 gives room for
// the whole catalogue.
func NewProgressReporter(workers int) *ProgressReporter {
	if workers <= 0 {
		workers = len(agent.Names())
	}
	return &ProgressReporter{ch: make(chan ProgressEvent, workers*EventsPerWorker)}
}

// Emit queues event. It is a no-op after Close.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	select {
	case pr.ch <- event:
	default:
		pr.dropped.Add(1)
	}
}

// Subscribe returns the event channel. It is closed by Close.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close ends the stream. Calling it more than once is safe.
func (pr *ProgressReporter) Close() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if !pr.closed {
		pr.closed = true
		close(pr.ch)
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (pr *ProgressReporter) Dropped() int64 {
	return pr.dropped.Load()
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.State {
	case StatePending:
		return fmt.Sprintf("  ○ %s (pending)", event.Worker)
	case StateRunning:
		return fmt.Sprintf("  ● %s...", event.Worker)
	case StateSucceeded:
		return fmt.Sprintf("  ✓ %s complete (%s)", event.Worker, event.Elapsed.Round(time.Millisecond))
	case StateFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Worker, event.Message)
	case StateTimedOut:
		return fmt.Sprintf("  ⌛ %s timed out after %s", event.Worker, event.Elapsed.Round(time.Millisecond))
	case StateCancelled:
		return fmt.Sprintf("  - %s cancelled", event.Worker)
	default:
		return fmt.Sprintf("  ? %s (unknown state)", event.Worker)
	}
}
