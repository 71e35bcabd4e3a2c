package core

import (
	"sync"
)

// ExecutionContext carries the per-dispatch state. It is created at dispatch
// entry, mutated only through Controllers handed to this dispatch's handlers
// and discarded when the dispatch returns. It is never shared across
// dispatches.
//
// Handlers of one dispatch may run concurrently (parallel and race modes,
// non-blocking handlers in sequential mode), so all mutable state is guarded
// by a mutex.
type ExecutionContext struct {
	ActionName string
	DispatchID string
	Mode       ExecutionMode
	// Handlers is the immutable snapshot this dispatch runs against.
	Handlers []*Registration

	mu          sync.Mutex
	payload     any
	aborted     bool
	abortReason string
	jump        *int
	results     []any
}

// NewExecutionContext constructs the context for one dispatch.
func NewExecutionContext(action, dispatchID string, mode ExecutionMode, payload any, handlers []*Registration) *ExecutionContext {
	return &ExecutionContext{
		ActionName: action,
		DispatchID: dispatchID,
		Mode:       mode,
		Handlers:   handlers,
		payload:    payload,
	}
}

// Payload returns the current payload.
func (ec *ExecutionContext) Payload() any {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.payload
}

// Aborted reports whether any handler aborted the dispatch, and the reason
// given by the first one to do so.
func (ec *ExecutionContext) Aborted() (bool, string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.aborted, ec.abortReason
}

// TakeJump returns and clears a pending jump request.
func (ec *ExecutionContext) TakeJump() (int, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.jump == nil {
		return 0, false
	}
	target := *ec.jump
	ec.jump = nil
	return target, true
}

// Results returns the values collected via Controller.SetResult in the order
// they were set.
func (ec *ExecutionContext) Results() []any {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]any, len(ec.results))
	copy(out, ec.results)
	return out
}

// abort is monotonic: the first reason is kept.
func (ec *ExecutionContext) abort(reason string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.aborted {
		return
	}
	ec.aborted = true
	ec.abortReason = reason
}

func (ec *ExecutionContext) modifyPayload(fn func(any) any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.payload = fn(ec.payload)
}

func (ec *ExecutionContext) setJump(priority int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.jump = &priority
}

func (ec *ExecutionContext) addResult(v any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.results = append(ec.results, v)
}
