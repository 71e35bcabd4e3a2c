package event

import (
	"time"

	"github.com/hupe1980/actionregister/core"
)

// Type names a lifecycle notification.
type Type string

const (
	// HandlerRegister fires after a handler was inserted into a pipeline.
	HandlerRegister Type = "handler:register"
	// HandlerUnregister fires after a handler was removed through its
	// unregister function.
	HandlerUnregister Type = "handler:unregister"
	// ActionStart fires when a dispatch begins, before any handler runs.
	ActionStart Type = "action:start"
	// ActionComplete fires when a dispatch ran to completion.
	ActionComplete Type = "action:complete"
	// ActionAbort fires when a handler aborted the dispatch.
	ActionAbort Type = "action:abort"
	// ActionError fires when a handler failed the dispatch.
	ActionError Type = "action:error"
)

// Types lists every lifecycle type in emission order of a dispatch.
var Types = []Type{HandlerRegister, HandlerUnregister, ActionStart, ActionComplete, ActionAbort, ActionError}

// Event carries one lifecycle notification. Fields not relevant to Type are
// left zero: handler events set HandlerID and Priority, terminal dispatch
// events set Metrics, aborts set Reason and errors set Err.
type Event struct {
	Type       Type
	Action     string
	DispatchID string
	HandlerID  string
	Priority   int
	Payload    any
	Reason     string
	Err        error
	Metrics    *core.Metrics
	Timestamp  time.Time
}
