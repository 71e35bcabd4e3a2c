package actionregister

import (
	"github.com/hupe1980/actionregister/core"
	"github.com/hupe1980/actionregister/event"
)

// HandlerInfo describes one live registration.
type HandlerInfo struct {
	ID         string
	Priority   int
	Blocking   bool
	Once       bool
	Middleware bool
}

// ActionInfo describes the pipeline bound to one action.
type ActionInfo struct {
	Action     string
	Mode       core.ExecutionMode
	Handlers   []HandlerInfo
	Once       int
	Middleware int
}

// Info is a point-in-time view of the register.
type Info struct {
	Name        string
	DefaultMode core.ExecutionMode
	Actions     []ActionInfo
	Listeners   map[event.Type]int
}

// Info reports the registered actions in name order with their handlers
// in execution order.
func (r *ActionRegister) Info() Info {
	r.modesMu.RLock()
	defaultMode := r.defaultMode
	r.modesMu.RUnlock()

	info := Info{
		Name:        r.name,
		DefaultMode: defaultMode,
		Listeners:   make(map[event.Type]int, len(event.Types)),
	}

	for _, action := range r.registry.Actions() {
		regs := r.registry.Snapshot(action)
		if len(regs) == 0 {
			continue
		}
		ai := ActionInfo{
			Action:   action,
			Mode:     r.ActionExecutionMode(action),
			Handlers: make([]HandlerInfo, 0, len(regs)),
		}
		for _, reg := range regs {
			ai.Handlers = append(ai.Handlers, HandlerInfo{
				ID:         reg.ID,
				Priority:   reg.Priority,
				Blocking:   reg.Blocking,
				Once:       reg.Once,
				Middleware: reg.Middleware,
			})
			if reg.Once {
				ai.Once++
			}
			if reg.Middleware {
				ai.Middleware++
			}
		}
		info.Actions = append(info.Actions, ai)
	}

	for _, t := range event.Types {
		if n := r.bus.ListenerCount(t); n > 0 {
			info.Listeners[t] = n
		}
	}
	return info
}
