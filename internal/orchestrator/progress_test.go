package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

func TestProgressReporter_HoldsWholeRun(t *testing.T) {
	pr := NewProgressReporter(2)

	for _, w := range []string{"quiz", "story_teller"} {
		for _, st := range []State{StatePending, StateRunning, StateSucceeded} {
			pr.Emit(ProgressEvent{Worker: w, State: st})
		}
	}
	pr.Close()

	var got []ProgressEvent
	for ev := range pr.Subscribe() {
		got = append(got, ev)
	}
	assert.Len(t, got, 2*EventsPerWorker)
	assert.Equal(t, ProgressEvent{Worker: "quiz", State: StatePending}, got[0])
	assert.Zero(t, pr.Dropped())
}

func TestProgressReporter_FullBufferDropsWithoutBlocking(t *testing.T) {
	pr := NewProgressReporter(1)
	defer pr.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			pr.Emit(ProgressEvent{Worker: "quiz", State: StateRunning})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked when the buffer was full")
	}
	assert.Equal(t, int64(10-EventsPerWorker), pr.Dropped())
}

func TestProgressReporter_DefaultSizeFitsCatalogue(t *testing.T) {
	pr := NewProgressReporter(0)
	defer pr.Close()
	assert.Equal(t, len(agent.Names())*EventsPerWorker, cap(pr.Subscribe()))
}

func TestProgressReporter_EmitAfterCloseIsIgnored(t *testing.T) {
	pr := NewProgressReporter(1)
	pr.Emit(ProgressEvent{Worker: "quiz", State: StateSucceeded})
	pr.Close()
	pr.Close()

	require.NotPanics(t, func() {
		pr.Emit(ProgressEvent{Worker: "quiz", State: StateFailed})
	})

	var received []ProgressEvent
	for ev := range pr.Subscribe() {
		received = append(received, ev)
	}
	require.Len(t, received, 1)
	assert.Equal(t, StateSucceeded, received[0].State)
}

func TestFormatProgress_AllStates(t *testing.T) {
	tests := []struct {
		name   string
		event  ProgressEvent
		expect string
	}{
		{
			name:   "pending",
			event:  ProgressEvent{Worker: "quiz", State: StatePending},
			expect: "  ○ quiz (pending)",
		},
		{
			name:   "running",
			event:  ProgressEvent{Worker: "quiz", State: StateRunning},
			expect: "  ● quiz...",
		},
		{
			name:   "succeeded",
			event:  ProgressEvent{Worker: "quiz", State: StateSucceeded, Elapsed: 1500 * time.Millisecond},
			expect: "  ✓ quiz complete (1.5s)",
		},
		{
			name:   "failed",
			event:  ProgressEvent{Worker: "quiz", State: StateFailed, Message: "quota exceeded"},
			expect: "  ✗ quiz failed: quota exceeded",
		},
		{
			name:   "timed out",
			event:  ProgressEvent{Worker: "quiz", State: StateTimedOut, Elapsed: time.Minute},
			expect: "  ⌛ quiz timed out after 1m0s",
		},
		{
			name:   "cancelled",
			event:  ProgressEvent{Worker: "quiz", State: StateCancelled},
			expect: "  - quiz cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, FormatProgress(tt.event))
		})
	}
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, StateSucceeded, stateOf(agent.Success(nil)))
	assert.Equal(t, StateTimedOut, stateOf(agent.Fail(agent.KindTimeout, "", nil)))
	assert.Equal(t, StateCancelled, stateOf(agent.Fail(agent.KindCancelled, "", nil)))
	assert.Equal(t, StateFailed, stateOf(agent.Fail(agent.KindInvalidInput, "", nil)))
	assert.Equal(t, StateFailed, stateOf(agent.Fail(agent.KindInternalError, "", nil)))

	assert.False(t, StatePending.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateTimedOut.Terminal())
}
