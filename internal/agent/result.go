package agent

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies a Failure.
type ErrorKind string

const (
	KindInvalidInput  ErrorKind = "invalid_input"
	KindInternalError ErrorKind = "internal_error"
	KindTimeout       ErrorKind = "timeout"
	KindForbidden     ErrorKind = "forbidden"
	KindCancelled     ErrorKind = "cancelled"
)

// Status is the coarse outcome of a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome of one worker invocation: either a Success carrying
// Outputs or a Failure carrying a Kind and Message. The zero value is not a
// valid Result; use Success or Failure to construct one.
type Result struct {
	outputs Outputs
	failure *Failure
}

// Failure describes why an invocation did not succeed.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Raw     any       `json:"raw,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Success builds a successful Result. A nil outputs map is normalized to an
// empty one.
func Success(outputs Outputs) Result {
	if outputs == nil {
		outputs = Outputs{}
	}
	return Result{outputs: outputs}
}

// Fail builds a failed Result.
func Fail(kind ErrorKind, message string, raw any) Result {
	return Result{failure: &Failure{Kind: kind, Message: message, Raw: raw}}
}

// Failf builds a failed Result with a formatted message.
func Failf(kind ErrorKind, format string, args ...any) Result {
	return Fail(kind, fmt.Sprintf(format, args...), nil)
}

// OK reports whether the Result is a Success.
func (r Result) OK() bool {
	return r.failure == nil
}

// Outputs returns the success payload, or nil for a Failure.
func (r Result) Outputs() Outputs {
	if r.failure != nil {
		return nil
	}
	return r.outputs
}

// Failure returns the failure details, or nil for a Success.
func (r Result) Failure() *Failure {
	return r.failure
}

// Kind returns the failure kind, or "" for a Success.
func (r Result) Kind() ErrorKind {
	if r.failure == nil {
		return ""
	}
	return r.failure.Kind
}

// Status returns StatusSuccess or StatusFailure.
func (r Result) Status() Status {
	if r.failure == nil {
		return StatusSuccess
	}
	return StatusFailure
}

// Conforms reports whether a Success carries every output key the contract
// declares. Failures always conform: their shape is fixed.
func (r Result) Conforms(c Contract) bool {
	if r.failure != nil {
		return true
	}
	for _, key := range c.Produces {
		if _, ok := r.outputs[key]; !ok {
			return false
		}
	}
	return true
}

// resultJSON is the wire shape of a Result.
type resultJSON struct {
	Status  Status   `json:"status"`
	Outputs Outputs  `json:"outputs,omitempty"`
	Error   *Failure `json:"error,omitempty"`
}

// MarshalJSON encodes the Result as {status, outputs?, error?}. Raw failure
// details are not part of the wire format.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Status: r.Status()}
	if r.failure != nil {
		out.Error = &Failure{Kind: r.failure.Kind, Message: r.failure.Message}
	} else {
		out.Outputs = r.outputs
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case StatusSuccess:
		*r = Success(in.Outputs)
	case StatusFailure:
		if in.Error == nil {
			return fmt.Errorf("result: failure without error object")
		}
		*r = Fail(in.Error.Kind, in.Error.Message, nil)
	default:
		return fmt.Errorf("result: unknown status %q", in.Status)
	}
	return nil
}
