package core

import (
	"sync"
	"sync/atomic"
)

// Controller is the capability object handed to a handler. A new Controller
// is constructed for every handler invocation; it is never reused across
// invocations or dispatches, so abort and jump requests are always
// attributable to exactly one handler run.
type Controller struct {
	ec  *ExecutionContext
	reg *Registration

	yield     chan struct{}
	yieldOnce sync.Once
	aborted   atomic.Bool

	mu     sync.Mutex
	reason string
}

// NewController binds a Controller to one handler invocation within ec.
func NewController(ec *ExecutionContext, reg *Registration) *Controller {
	return &Controller{ec: ec, reg: reg, yield: make(chan struct{})}
}

// Next signals that the handler is done with work the pipeline must observe.
// In sequential mode a non-blocking handler releases the pipeline to the
// next handler at this point; in parallel and race modes advancement is
// driven by the executor and Next has no effect. Calling Next more than once
// is harmless.
func (c *Controller) Next() {
	c.yieldOnce.Do(func() { close(c.yield) })
}

// Yielded is closed once Next has been called.
func (c *Controller) Yielded() <-chan struct{} { return c.yield }

// Abort stops further pipeline progression. Handlers already running are not
// preempted. The first abort reason recorded in the dispatch wins.
func (c *Controller) Abort(reason string) {
	c.mu.Lock()
	if !c.aborted.Load() {
		c.reason = reason
		c.aborted.Store(true)
	}
	c.mu.Unlock()
	c.ec.abort(reason)
}

// Aborted reports whether this invocation called Abort.
func (c *Controller) Aborted() bool { return c.aborted.Load() }

// AbortReason returns the reason passed to this invocation's first Abort
// call, which may differ from the reason recorded for the dispatch.
func (c *Controller) AbortReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// ModifyPayload replaces the dispatch payload with fn(payload).
func (c *Controller) ModifyPayload(fn func(payload any) any) {
	c.ec.modifyPayload(fn)
}

// GetPayload returns the current dispatch payload, including modifications
// made by earlier handlers.
func (c *Controller) GetPayload() any { return c.ec.Payload() }

// JumpToPriority asks the sequential executor to continue at the first
// handler whose priority is less than or equal to priority. Ignored in
// parallel and race modes, and ignored once a non-blocking handler has
// called Next, since the pipeline has already moved past it.
func (c *Controller) JumpToPriority(priority int) {
	if c.reg != nil && !c.reg.Blocking && c.yielded() {
		return
	}
	c.ec.setJump(priority)
}

func (c *Controller) yielded() bool {
	select {
	case <-c.yield:
		return true
	default:
		return false
	}
}

// SetResult records a value returned to DispatchWithResult callers.
func (c *Controller) SetResult(v any) {
	c.ec.addResult(v)
}

// HandlerID returns the id of the handler this controller belongs to.
func (c *Controller) HandlerID() string { return c.reg.ID }

// ActionName returns the dispatched action.
func (c *Controller) ActionName() string { return c.ec.ActionName }

// DispatchID returns the id of the dispatch this invocation belongs to.
func (c *Controller) DispatchID() string { return c.ec.DispatchID }

// PayloadAs returns the current payload converted to T.
func PayloadAs[T any](c *Controller) (T, bool) {
	v, ok := c.GetPayload().(T)
	return v, ok
}
