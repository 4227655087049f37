package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/vidyavahini/vidyavahini/internal/llm"
)

// historyLimit caps the number of past invocations kept in worker memory.
const historyLimit = 10

const frameTemplate = `You are {{.Role}}.
Your goal: {{.Goal}}.

{{template "task" .}}
{{- if .History}}

Topics already covered in earlier sessions: {{join .History ", "}}. Avoid repeating them verbatim.
{{- end}}

Respond with a single JSON object with exactly these keys: {{join .Produces ", "}}.
Do not add any text outside the JSON object.
`

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"json": func(v any) string {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	},
}

// promptData is the template context of a prompt worker.
type promptData struct {
	Role     string
	Goal     string
	Produces []string
	History  []string
	inputs   Inputs
}

// Get returns the input at key rendered as text, or def when absent.
func (d promptData) Get(key, def string) string {
	v, ok := d.inputs[key]
	if !ok || v == nil {
		return def
	}
	if s, isString := v.(string); isString {
		if s == "" {
			return def
		}
		return s
	}
	return fmt.Sprint(v)
}

// Value returns the raw input at key.
func (d promptData) Value(key string) any {
	return d.inputs[key]
}

// promptWorker renders a Spec into a prompt, sends it to the model and
// decodes the JSON answer.
type promptWorker struct {
	spec   Spec
	tmpl   *template.Template
	gen    llm.Generator
	logger *slog.Logger
}

// NewPromptWorker builds a worker for spec that prompts gen.
func NewPromptWorker(spec Spec, gen llm.Generator, opts ...Option) (*BaseWorker, error) {
	if gen == nil {
		return nil, fmt.Errorf("agent %s: generator is required", spec.Name)
	}
	tmpl, err := template.New("frame").Funcs(templateFuncs).Parse(frameTemplate)
	if err != nil {
		return nil, fmt.Errorf("agent %s: parse frame: %w", spec.Name, err)
	}
	if _, err := tmpl.New("task").Parse(spec.Task); err != nil {
		return nil, fmt.Errorf("agent %s: parse task: %w", spec.Name, err)
	}

	pw := &promptWorker{spec: spec, tmpl: tmpl, gen: gen}
	w := NewBaseWorker(spec.Name, spec.Contract, pw.process, opts...)
	pw.logger = w.logger
	return w, nil
}

// render returns the prompt for inputs with the given history of topics.
func (p *promptWorker) render(inputs Inputs, history []string) (string, error) {
	var sb strings.Builder
	err := p.tmpl.ExecuteTemplate(&sb, "frame", promptData{
		Role:     p.spec.Role,
		Goal:     p.spec.Goal,
		Produces: p.spec.Contract.Produces,
		History:  history,
		inputs:   inputs,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}

func (p *promptWorker) process(ctx context.Context, inputs Inputs, mem Memory) (Outputs, error) {
	prompt, err := p.render(inputs, mem.topics())
	if err != nil {
		return nil, err
	}

	raw, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, &Failure{Kind: KindTimeout, Message: "model call exceeded deadline"}
		case ctx.Err() != nil:
			return nil, &Failure{Kind: KindCancelled, Message: "model call cancelled"}
		}
		return nil, fmt.Errorf("generate: %w", err)
	}

	outputs, fallback := p.decode(raw)
	mem.record(inputs.String("topic", ""), fallback)
	return outputs, nil
}

// decode turns raw model output into the worker's outputs. Unusable output
// yields the catalogue fallback payload marked with is_fallback.
func (p *promptWorker) decode(raw string) (Outputs, bool) {
	doc, err := llm.DecodeJSON(raw)
	if err != nil {
		var de *llm.DecodeError
		if errors.As(err, &de) {
			p.logger.Warn("model output is not JSON, using fallback", "error", de.Err)
		}
		out := p.fallback()
		out["is_fallback"] = true
		out["raw_response"] = raw
		return out, true
	}

	out := Outputs(doc)
	var missing []string
	for _, key := range p.spec.Contract.Produces {
		if _, ok := out[key]; !ok {
			missing = append(missing, key)
			out[key] = cloneValue(p.spec.Fallback[key])
		}
	}
	fallback := len(missing) > 0
	if fallback {
		sort.Strings(missing)
		p.logger.Debug("model output missing keys, filled from fallback", "keys", missing)
		out["raw_response"] = raw
	}
	out["is_fallback"] = fallback
	return out, fallback
}

func (p *promptWorker) fallback() Outputs {
	out := make(Outputs, len(p.spec.Contract.Produces)+2)
	for _, key := range p.spec.Contract.Produces {
		out[key] = cloneValue(p.spec.Fallback[key])
	}
	return out
}

// topics returns the topics recorded in memory, oldest first.
func (m Memory) topics() []string {
	entries, _ := m["history"].([]any)
	var topics []string
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := entry["topic"].(string); ok && t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// record appends an invocation to the memory history.
func (m Memory) record(topic string, fallback bool) {
	entries, _ := m["history"].([]any)
	entries = append(entries, map[string]any{
		"at":          time.Now().UTC().Format(time.RFC3339),
		"topic":       topic,
		"is_fallback": fallback,
	})
	if len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}
	m["history"] = entries
}

// cloneValue deep-copies the JSON-shaped values used in fallback payloads.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Outputs:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
