package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/actionregister/core"
)

// runParallel starts every admitted handler concurrently against the same
// ExecutionContext and waits for all of them to settle. Abort is
// cooperative: it marks the context but siblings keep running. The first
// error wins over any abort.
func (e *Executor) runParallel(ctx context.Context, ec *core.ExecutionContext) Result {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		invoked = make([]*core.Registration, 0, len(ec.Handlers))
	)

	for _, reg := range ec.Handlers {
		reg := reg
		g.Go(func() error {
			ok, err := e.admit(ctx, ec, reg)
			if err != nil || !ok {
				return err
			}

			mu.Lock()
			invoked = append(invoked, reg)
			mu.Unlock()

			return e.call(ctx, ec, reg, core.NewController(ec, reg))
		})
	}

	err := g.Wait()
	if err != nil {
		return failed(err, invoked)
	}
	return finished(ec, invoked)
}
