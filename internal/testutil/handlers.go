package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/actionregister/core"
)

// Calls records handler invocations, safe for concurrent handlers.
type Calls struct {
	mu       sync.Mutex
	ids      []string
	payloads []any
}

// Record returns a handler that appends id and the payload it observed.
func (c *Calls) Record(id string) core.HandlerFunc {
	return func(_ context.Context, payload any, _ *core.Controller) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.ids = append(c.ids, id)
		c.payloads = append(c.payloads, payload)
		return nil
	}
}

// IDs returns the recorded handler ids in invocation order.
func (c *Calls) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

// Payloads returns the payloads seen by each recorded invocation.
func (c *Calls) Payloads() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.payloads...)
}

// Len returns the number of recorded invocations.
func (c *Calls) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Failing returns a handler that returns err.
func Failing(err error) core.HandlerFunc {
	return func(context.Context, any, *core.Controller) error { return err }
}

// Aborting returns a handler that aborts with reason.
func Aborting(reason string) core.HandlerFunc {
	return func(_ context.Context, _ any, c *core.Controller) error {
		c.Abort(reason)
		return nil
	}
}
