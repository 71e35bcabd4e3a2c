// Package registry owns the per-action handler pipelines.
//
// Each action maps to a list of registrations kept sorted by descending
// priority, stable on ties, plus an id index for constant time lookup.
// Dispatches never read the live list: they take a Snapshot, so registry
// edits made while a dispatch is in flight are only visible to later
// dispatches.
package registry

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/actionregister/core"
	"github.com/hupe1980/actionregister/internal/clock"
	"github.com/hupe1980/actionregister/logging"
)

// handlerSeq backs auto-generated handler ids. It is process-wide, only ever
// incremented, and reset only by a process restart.
var handlerSeq atomic.Uint64

func nextHandlerID() string {
	return fmt.Sprintf("handler_%d", handlerSeq.Add(1))
}

type pipeline struct {
	regs []*core.Registration
	byID map[string]*core.Registration
}

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*pipeline
	logger    logging.Logger
}

// New creates an empty registry. A nil logger discards output.
func New(logger logging.Logger) *Registry {
	return &Registry{
		pipelines: make(map[string]*pipeline),
		logger:    logging.OrNoOp(logger),
	}
}

// Register inserts handler into action's pipeline and re-sorts it. An empty
// cfg.ID is replaced with a generated one not yet used in the pipeline. A
// duplicate explicit id, a nil handler or an empty action name leaves the
// registry untouched, logs a warning and returns false.
func (r *Registry) Register(action string, handler core.HandlerFunc, cfg core.HandlerConfig) (*core.Registration, bool) {
	if action == "" {
		r.logger.Warn("Registration ignored: empty action name", "handler_id", cfg.ID)
		return nil, false
	}
	if handler == nil {
		r.logger.Warn("Registration ignored: nil handler", "action", action, "handler_id", cfg.ID)
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[action]
	if !ok {
		p = &pipeline{byID: make(map[string]*core.Registration)}
		r.pipelines[action] = p
	}
	if cfg.ID == "" {
		// Generated ids skip any already taken by explicit registrations.
		cfg.ID = nextHandlerID()
		for p.byID[cfg.ID] != nil {
			cfg.ID = nextHandlerID()
		}
	}
	if _, exists := p.byID[cfg.ID]; exists {
		r.logger.Warn("Registration ignored: duplicate handler id", "action", action, "handler_id", cfg.ID)
		return nil, false
	}

	reg := &core.Registration{
		HandlerConfig: cfg,
		Action:        action,
		Handler:       handler,
		RegisteredAt:  clock.Now(),
	}
	p.regs = append(p.regs, reg)
	p.byID[cfg.ID] = reg
	slices.SortStableFunc(p.regs, func(a, b *core.Registration) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	r.logger.Debug("Handler registered", "action", action, "handler_id", cfg.ID, "priority", cfg.Priority)
	return reg, true
}

// Unregister removes the handler with id from action's live pipeline. It is
// a no-op returning false when the handler is already gone, so handlers may
// unregister themselves during their own invocation.
func (r *Registry) Unregister(action, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[action]
	if !ok {
		return false
	}
	reg, ok := p.byID[id]
	if !ok {
		return false
	}
	r.removeLocked(action, p, reg)
	return true
}

// Remove removes exactly reg. A different registration that later reused
// the same id is left alone.
func (r *Registry) Remove(action string, reg *core.Registration) bool {
	if reg == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[action]
	if !ok || p.byID[reg.ID] != reg {
		return false
	}
	r.removeLocked(action, p, reg)
	return true
}

func (r *Registry) removeLocked(action string, p *pipeline, reg *core.Registration) {
	delete(p.byID, reg.ID)
	p.regs = slices.DeleteFunc(p.regs, func(x *core.Registration) bool { return x == reg })
	if len(p.regs) == 0 {
		delete(r.pipelines, action)
	}
	r.logger.Debug("Handler unregistered", "action", action, "handler_id", reg.ID)
}

// Snapshot returns a copy of action's pipeline in execution order.
func (r *Registry) Snapshot(action string) []*core.Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pipelines[action]
	if !ok {
		return nil
	}
	return slices.Clone(p.regs)
}

// PruneOnce removes every one-shot registration in executed from action's
// live pipeline and returns the removed ids.
func (r *Registry) PruneOnce(action string, executed []*core.Registration) []string {
	var once []*core.Registration
	for _, reg := range executed {
		if reg.Once {
			once = append(once, reg)
		}
	}
	if len(once) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[action]
	if !ok {
		return nil
	}

	var removed []string
	for _, reg := range once {
		if p.byID[reg.ID] != reg {
			continue
		}
		r.removeLocked(action, p, reg)
		removed = append(removed, reg.ID)
		if _, still := r.pipelines[action]; !still {
			break
		}
	}
	return removed
}

// Count returns the number of handlers bound to action.
func (r *Registry) Count(action string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.pipelines[action]; ok {
		return len(p.regs)
	}
	return 0
}

// Has reports whether action has at least one handler.
func (r *Registry) Has(action string) bool {
	return r.Count(action) > 0
}

// Get returns the live registration for id, if any.
func (r *Registry) Get(action, id string) (*core.Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pipelines[action]
	if !ok {
		return nil, false
	}
	reg, ok := p.byID[id]
	return reg, ok
}

// Actions returns the names of all actions with handlers, sorted.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear drops every handler bound to action and returns how many were removed.
// Dispatches already holding a snapshot are unaffected.
func (r *Registry) Clear(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[action]
	if !ok {
		return 0
	}
	delete(r.pipelines, action)
	r.logger.Debug("Action cleared", "action", action, "handler_count", len(p.regs))
	return len(p.regs)
}

// ClearAll drops every pipeline.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pipelines = make(map[string]*pipeline)
	r.logger.Debug("All actions cleared")
}
