package orchestrator

import (
	"context"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

// sequential runs workers one after another in registration order. The
// outputs of completed workers are merged into the context seen by later
// workers; keys supplied by the caller are never overwritten, run defaults
// are.
func (r *run) sequential(ctx context.Context, workers []agent.Worker, base, caller agent.Inputs) map[string]agent.Result {
	results := make(map[string]agent.Result, len(workers))
	shared := base.Clone()

	for i, w := range workers {
		if ctx.Err() != nil {
			for _, rest := range workers[i:] {
				results[rest.Name()] = r.cancelled(ctx, rest.Name())
			}
			break
		}

		res := r.invoke(ctx, w, r.o.inputsFor(w, shared))
		results[w.Name()] = res
		if res.OK() {
			mergeOutputs(shared, caller, res.Outputs())
		}
	}
	return results
}

// mergeOutputs copies outputs into shared, skipping keys present in caller.
// Between workers, the later output wins.
func mergeOutputs(shared, caller agent.Inputs, outputs agent.Outputs) {
	for k, v := range outputs {
		if _, fromCaller := caller[k]; fromCaller {
			continue
		}
		shared[k] = v
	}
}
