package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

// parallel dispatches every worker concurrently against the original inputs
// and waits for all of them to reach a terminal state.
//
// The errgroup is used as a bounded pool only. Worker failures are results,
// not errors, so a failing worker never cancels its siblings.
func (r *run) parallel(ctx context.Context, workers []agent.Worker, inputs agent.Inputs) map[string]agent.Result {
	var (
		mu      sync.Mutex
		results = make(map[string]agent.Result, len(workers))
	)

	g := new(errgroup.Group)
	if r.o.maxParallel > 0 {
		g.SetLimit(r.o.maxParallel)
	}

	for _, w := range workers {
		if ctx.Err() != nil {
			break
		}
		in := r.o.inputsFor(w, inputs)

		// Go blocks while the pool is full.
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := r.invoke(ctx, w, in)
			mu.Lock()
			results[w.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, w := range workers {
		if _, ok := results[w.Name()]; !ok {
			results[w.Name()] = r.cancelled(ctx, w.Name())
		}
	}
	return results
}
