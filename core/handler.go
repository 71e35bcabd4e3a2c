package core

import (
	"context"
	"time"
)

// HandlerFunc is the callable bound to an action. It receives the payload as
// it stood when the handler was invoked and a Controller scoped to this one
// invocation. A returned error fails the dispatch (sequential/parallel) or
// decides it (race, when this handler settles first).
type HandlerFunc func(ctx context.Context, payload any, c *Controller) error

// HandlerConfig controls how a handler participates in a pipeline.
type HandlerConfig struct {
	// ID identifies the handler within its action. Empty means auto-assigned.
	ID string
	// Priority orders the pipeline; higher runs first. Defaults to 0.
	Priority int
	// Blocking makes sequential mode wait for the handler to return. A
	// non-blocking handler releases the pipeline when it calls Next or
	// returns, whichever comes first; an error it returns after calling
	// Next is logged and does not fail the dispatch, and a jump it requests
	// after calling Next is ignored.
	Blocking bool
	// Once removes the handler after it ran in a dispatch that did not fail.
	Once bool
	// Condition is evaluated before every invocation; false skips the handler.
	Condition func() bool
	// Validation is evaluated against the current payload; false skips the handler.
	Validation func(payload any) bool
	// Debounce delays the invocation on a per-handler trailing edge.
	Debounce time.Duration
	// Throttle admits at most one invocation per window.
	Throttle time.Duration
	// Middleware tags the handler as cross-cutting; it is reported in
	// registry info and otherwise treated like any other handler.
	Middleware bool
}

// Registration is one handler bound to one action. It is immutable once
// inserted into a pipeline; snapshots share the same pointers.
type Registration struct {
	HandlerConfig
	Action       string
	Handler      HandlerFunc
	RegisteredAt time.Time
}

// Admits reports whether Condition and Validation both allow the payload.
func (r *Registration) Admits(payload any) bool {
	if r.Condition != nil && !r.Condition() {
		return false
	}
	if r.Validation != nil && !r.Validation(payload) {
		return false
	}
	return true
}

// GuardKey is the key used for this handler's debounce/throttle state.
func (r *Registration) GuardKey() string {
	return r.Action + "#" + r.ID
}

// WithID sets an explicit handler id.
func WithID(id string) func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.ID = id }
}

// WithPriority sets the handler priority.
func WithPriority(p int) func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Priority = p }
}

// WithBlocking marks the handler as blocking.
func WithBlocking() func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Blocking = true }
}

// WithOnce marks the handler as one-shot.
func WithOnce() func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Once = true }
}

// WithCondition sets the pre-invocation condition.
func WithCondition(fn func() bool) func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Condition = fn }
}

// WithValidation sets the payload validation predicate.
func WithValidation(fn func(payload any) bool) func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Validation = fn }
}

// WithDebounce debounces the handler by d.
func WithDebounce(d time.Duration) func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Debounce = d }
}

// WithThrottle throttles the handler to one invocation per d.
func WithThrottle(d time.Duration) func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Throttle = d }
}

// AsMiddleware tags the handler as middleware.
func AsMiddleware() func(c *HandlerConfig) {
	return func(c *HandlerConfig) { c.Middleware = true }
}
