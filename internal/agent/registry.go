package agent

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vidyavahini/vidyavahini/internal/llm"
	"github.com/vidyavahini/vidyavahini/internal/memory"
)

// Deps are the collaborators shared by the workers a Registry builds.
type Deps struct {
	Generator llm.Generator
	// Memory creates one exclusive store per worker. Nil disables memory.
	Memory memory.Factory
	Logger *slog.Logger
}

// Factory is a constructor that creates a Worker.
type Factory func(deps Deps) (Worker, error)

// Registry maps worker names to their factories and remembers declaration
// order.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	order     []string
}

// NewRegistry creates a Registry pre-registered with the built-in catalogue.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, spec := range catalogue {
		r.add(spec.Name, promptFactory(spec))
	}
	return r
}

// Register adds or replaces the factory for name. New names are appended to
// the declaration order.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(name, f)
}

func (r *Registry) add(name string, f Factory) {
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Names returns the registered names in declaration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Build creates the worker registered under name.
func (r *Registry) Build(name string, deps Deps) (Worker, error) {
	r.mu.Lock()
	factory, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no factory registered for worker %q", name)
	}
	w, err := factory(deps)
	if err != nil {
		return nil, fmt.Errorf("build worker %q: %w", name, err)
	}
	return w, nil
}

// BuildAll creates the named workers in declaration order. An empty names
// slice builds every registered worker. Unknown names are an error.
func (r *Registry) BuildAll(names []string, deps Deps) ([]Worker, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	r.mu.Lock()
	order := make([]string, 0, len(r.order))
	for _, n := range r.order {
		if len(names) == 0 || want[n] {
			order = append(order, n)
			delete(want, n)
		}
	}
	r.mu.Unlock()

	for n := range want {
		return nil, fmt.Errorf("no factory registered for worker %q", n)
	}

	workers := make([]Worker, 0, len(order))
	for _, n := range order {
		w, err := r.Build(n, deps)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// promptFactory builds a prompt worker for spec with its own memory session.
func promptFactory(spec Spec) Factory {
	return func(deps Deps) (Worker, error) {
		var opts []Option
		if deps.Logger != nil {
			opts = append(opts, WithLogger(deps.Logger))
		}
		if deps.Memory != nil {
			store, err := deps.Memory.ForSession(spec.Name + "_session")
			if err != nil {
				return nil, fmt.Errorf("open memory: %w", err)
			}
			opts = append(opts, WithMemory(store))
		}
		w, err := NewPromptWorker(spec, deps.Generator, opts...)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}
