package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Event names on the run stream.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// KeepAliveInterval is how often the server writes a comment frame while no
// progress arrives.
const KeepAliveInterval = 15 * time.Second

// Name returns the SSE event name for ev, or "" when no payload is set.
func (ev StreamEvent) Name() string {
	switch {
	case ev.Progress != nil:
		return EventProgress
	case ev.Result != nil:
		return EventResult
	case ev.Error != nil:
		return EventError
	default:
		return ""
	}
}

// SSEWriter writes the run stream to an http.ResponseWriter. Every frame is
// tagged with the run ID so a client can match it to GET /api/runs/{id}.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	runID   string
}

// NewSSEWriter creates an SSEWriter for one run. Without http.Flusher support
// writes still succeed but may be buffered.
func NewSSEWriter(w http.ResponseWriter, runID string) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f, runID: runID}
}

// Init sends the stream headers and a 200 status. Call it once, before the
// first frame.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// WriteEvent writes ev as one frame:
//
//	event: progress
//	id: <run id>
//	data: {json}
func (sw *SSEWriter) WriteEvent(ev StreamEvent) error {
	name := ev.Name()
	if name == "" {
		return fmt.Errorf("sse: empty stream event")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: marshal %s event: %w", name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", name)
	if sw.runID != "" {
		fmt.Fprintf(&b, "id: %s\n", sw.runID)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)
	if _, err := io.WriteString(sw.w, b.String()); err != nil {
		return fmt.Errorf("sse: write %s event: %w", name, err)
	}
	sw.flush()
	return nil
}

// KeepAlive writes a comment frame so proxies do not close an idle stream.
func (sw *SSEWriter) KeepAlive() error {
	if _, err := io.WriteString(sw.w, ": keep-alive\n\n"); err != nil {
		return fmt.Errorf("sse: write keep-alive: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *SSEWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// frame accumulates the fields of one SSE event.
type frame struct {
	name string
	id   string
	data strings.Builder
}

func (f *frame) empty() bool { return f.data.Len() == 0 }

func (f *frame) reset() {
	f.name = ""
	f.data.Reset()
}

// decode turns the frame into a StreamEvent. A frame whose event name does
// not match its payload is reported as an error.
func (f *frame) decode() StreamEvent {
	var ev StreamEvent
	if err := json.Unmarshal([]byte(f.data.String()), &ev); err != nil {
		return StreamEvent{RunID: f.id, Err: fmt.Errorf("sse: unmarshal event: %w", err)}
	}
	ev.RunID = f.id
	if f.name != "" && f.name != ev.Name() {
		ev.Err = fmt.Errorf("sse: %q event carries a %q payload", f.name, ev.Name())
	}
	return ev
}

// ReadEvents reads the run stream from body and delivers one StreamEvent per
// frame. The channel closes when the body ends, a read error occurs or ctx is
// cancelled; the body is closed when reading stops.
//
// Comments and unknown fields are skipped. Repeated data lines are joined with
// newlines. A frame that cannot be decoded yields a StreamEvent with Err set
// and reading continues. The last id seen is carried into RunID.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		var f frame

		send := func() bool {
			if f.empty() {
				f.reset()
				return true
			}
			ev := f.decode()
			f.reset()
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for ctx.Err() == nil {
			if !scanner.Scan() {
				send()
				return
			}

			line := scanner.Text()
			if line == "" {
				if !send() {
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}

			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				f.name = value
			case "id":
				f.id = value
			case "data":
				if !f.empty() {
					f.data.WriteByte('\n')
				}
				f.data.WriteString(value)
			}
		}
	}()
	return ch
}
