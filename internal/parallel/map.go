// Package parallel provides a bounded concurrent map over a slice of
// inputs, used to decode many input files at once.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result pairs one input's output with its error. Failures are isolated:
// one failed input never suppresses the results of the others.
type Result[D any] struct {
	Value D
	Err   error
}

// Map applies f to every input with at most limit invocations in flight,
// returning one Result per input in input order. A canceled context stops
// scheduling new work; inputs not processed carry the context error.
func Map[E, D any](ctx context.Context, limit int, inputs []E, f func(context.Context, E) (D, error)) []Result[D] {
	if limit < 1 {
		limit = 1
	}
	out := make([]Result[D], len(inputs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Value, out[i].Err = f(ctx, in)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
