package agent

import (
	"context"
	"slices"
)

// Inputs is the shared input context handed to a worker invocation.
type Inputs map[string]any

// Outputs is the named payload a worker produces on success.
type Outputs map[string]any

// Worker is the interface that every agent implements. A worker wraps one
// capability (lesson generation, quiz generation, ...) behind Process.
type Worker interface {
	// Name identifies the worker; it must be unique within an orchestrator.
	Name() string

	// Contract returns the worker's declared inputs and outputs.
	Contract() Contract

	// Process runs the capability against inputs. It never panics and never
	// returns a Go error: every outcome is reported as a Result.
	Process(ctx context.Context, inputs Inputs) Result
}

// Contract is the advisory I/O declaration of a worker.
type Contract struct {
	// Accepts lists the input keys the worker reads.
	Accepts []string `json:"accepts" yaml:"accepts"`

	// Requires lists the input keys that must be present. Every required key
	// is implicitly accepted.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// Produces lists the output keys present in every Success.
	Produces []string `json:"produces" yaml:"produces"`
}

// Missing returns the required keys absent from inputs, in declaration order.
func (c Contract) Missing(inputs Inputs) []string {
	var missing []string
	for _, key := range c.Requires {
		v, ok := inputs[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Filter returns the subset of inputs the worker declares it accepts. A
// contract with no accepted keys passes every input through.
func (c Contract) Filter(inputs Inputs) Inputs {
	if len(c.Accepts) == 0 && len(c.Requires) == 0 {
		return inputs.Clone()
	}
	out := make(Inputs, len(c.Accepts)+len(c.Requires))
	for _, key := range c.Accepts {
		if v, ok := inputs[key]; ok {
			out[key] = v
		}
	}
	for _, key := range c.Requires {
		if v, ok := inputs[key]; ok {
			out[key] = v
		}
	}
	return out
}

// AcceptsKey reports whether key is declared as an accepted or required input.
func (c Contract) AcceptsKey(key string) bool {
	return slices.Contains(c.Accepts, key) || slices.Contains(c.Requires, key)
}

// Clone returns a shallow copy of in. Values are shared.
func (in Inputs) Clone() Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// String returns the value at key if it is a non-empty string, or def.
func (in Inputs) String(key, def string) string {
	if s, ok := in[key].(string); ok && s != "" {
		return s
	}
	return def
}
