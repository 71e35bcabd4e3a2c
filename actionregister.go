// Package actionregister is an in-process action pipeline. Handlers are
// registered against named actions with a priority, and Dispatch sends a
// payload through them under one of three execution modes: sequential,
// parallel or race.
//
// Most applications interact with this package by:
//  1. Creating an ActionRegister via New()
//  2. Registering handlers with Register, optionally configured through the
//     core.With* helpers
//  3. Dispatching payloads with Dispatch or DispatchWithResult
//  4. Observing the lifecycle through On/Once listeners
//
// The facade composes the registry, the pipeline executor, the guard station
// and the event bus. All of them are safe for concurrent use; concurrent
// dispatches run independently against their own handler snapshots.
package actionregister

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/actionregister/config"
	"github.com/hupe1980/actionregister/core"
	"github.com/hupe1980/actionregister/event"
	"github.com/hupe1980/actionregister/guard"
	"github.com/hupe1980/actionregister/internal/clock"
	"github.com/hupe1980/actionregister/internal/idgen"
	"github.com/hupe1980/actionregister/logging"
	"github.com/hupe1980/actionregister/pipeline"
	"github.com/hupe1980/actionregister/registry"
	"github.com/hupe1980/actionregister/telemetry"
)

// Options configures the ActionRegister instance.
type Options struct {
	// Config holds name, log settings and execution modes. Zero fields fall
	// back to config.Default values.
	Config config.Config

	// Logger overrides the logger built from Config. When nil and Config
	// sets neither Debug nor LogLevel, logging is disabled.
	Logger logging.Logger

	// Guards shares a guard station between registers. Defaults to a
	// private station.
	Guards *guard.Station

	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// ActionRegister binds actions to handler pipelines and dispatches payloads
// through them.
type ActionRegister struct {
	name   string
	logger logging.Logger

	registry  *registry.Registry
	executor  *pipeline.Executor
	guards    *guard.Station
	bus       *event.Bus
	telemetry *telemetry.Instrumentation

	modesMu     sync.RWMutex
	defaultMode core.ExecutionMode
	modes       map[string]core.ExecutionMode
}

// DispatchResult describes one finished dispatch.
type DispatchResult struct {
	DispatchID  string
	Outcome     pipeline.Outcome
	AbortReason string
	// Payload is the payload after every modification made by handlers.
	Payload any
	// Results holds the values handlers recorded with Controller.SetResult.
	Results []any
	Metrics core.Metrics
}

// New creates a new ActionRegister with optional overrides.
func New(optFns ...func(o *Options)) *ActionRegister {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	defaults := config.Default()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.DefaultExecutionMode == "" {
		cfg.DefaultExecutionMode = defaults.DefaultExecutionMode
	}

	logger := opts.Logger
	if logger == nil && (cfg.Debug || cfg.LogLevel != "") {
		logger = logging.NewSlogLogger(cfg.Level(), cfg.LogFormat, false).WithContext("register", cfg.Name)
	}
	logger = logging.OrNoOp(logger)

	guards := opts.Guards
	if guards == nil {
		guards = guard.New(func(o *guard.Options) { o.Logger = componentLogger(logger, "guard") })
	}

	r := &ActionRegister{
		name:     cfg.Name,
		logger:   componentLogger(logger, "register"),
		registry: registry.New(componentLogger(logger, "registry")),
		executor: pipeline.NewExecutor(func(o *pipeline.Options) {
			o.Guards = guards
			o.Logger = componentLogger(logger, "pipeline")
		}),
		guards: guards,
		bus:    event.NewBus(componentLogger(logger, "event")),
		telemetry: telemetry.New(func(o *telemetry.Options) {
			o.TracerProvider = opts.TracerProvider
			o.MeterProvider = opts.MeterProvider
		}),
		defaultMode: cfg.DefaultExecutionMode,
		modes:       make(map[string]core.ExecutionMode, len(cfg.ActionExecutionModes)),
	}
	maps.Copy(r.modes, cfg.ActionExecutionModes)

	return r
}

func componentLogger(l logging.Logger, component string) logging.Logger {
	if al, ok := l.(*logging.ActionLogger); ok {
		return al.WithComponent(component)
	}
	return l
}

// Name returns the configured register name.
func (r *ActionRegister) Name() string { return r.name }

// Logger returns the logger used by the register.
func (r *ActionRegister) Logger() logging.Logger { return r.logger }

// Guards returns the guard station backing debounce and throttle.
func (r *ActionRegister) Guards() *guard.Station { return r.guards }

// Register binds handler to action. The returned function removes exactly
// this registration from the live pipeline and emits handler:unregister;
// calling it again, or after the handler is gone, does nothing. A rejected
// registration (duplicate id, empty action, nil handler) is logged and
// yields a no-op function.
func (r *ActionRegister) Register(action string, handler core.HandlerFunc, opts ...func(c *core.HandlerConfig)) func() {
	var cfg core.HandlerConfig
	for _, fn := range opts {
		fn(&cfg)
	}

	reg, ok := r.registry.Register(action, handler, cfg)
	if !ok {
		return func() {}
	}

	r.bus.Emit(context.Background(), event.Event{
		Type:      event.HandlerRegister,
		Action:    action,
		HandlerID: reg.ID,
		Priority:  reg.Priority,
	})

	return func() {
		if !r.registry.Remove(action, reg) {
			return
		}
		r.bus.Emit(context.Background(), event.Event{
			Type:      event.HandlerUnregister,
			Action:    action,
			HandlerID: reg.ID,
			Priority:  reg.Priority,
		})
	}
}

// Dispatch runs payload through action's pipeline. A handler failure is
// returned unwrapped; aborts and skipped handlers are not errors.
func (r *ActionRegister) Dispatch(ctx context.Context, action string, payload any) error {
	_, err := r.DispatchWithResult(ctx, action, payload)
	return err
}

// DispatchWithResult is Dispatch returning the final payload, collected
// results and metrics. On failure both the result and the handler error
// are returned. An invalid execution mode is reported before any event is
// emitted and yields a nil result.
func (r *ActionRegister) DispatchWithResult(ctx context.Context, action string, payload any) (*DispatchResult, error) {
	mode := r.ActionExecutionMode(action)
	if !mode.Valid() {
		return nil, fmt.Errorf("action %q: %w: %q", action, core.ErrUnknownExecutionMode, mode)
	}

	dispatchID := idgen.New()
	handlers := r.registry.Snapshot(action)
	start := clock.Now()
	desc := telemetry.Dispatch{ID: dispatchID, Action: action, Mode: mode.String(), Handlers: len(handlers)}

	ctx, span := r.telemetry.StartDispatch(ctx, desc)
	r.bus.Emit(ctx, event.Event{
		Type:       event.ActionStart,
		Action:     action,
		DispatchID: dispatchID,
		Payload:    payload,
	})

	if len(handlers) == 0 {
		r.logger.Warn("No handlers registered for action", "action", action, "dispatch_id", dispatchID)
		m := core.Metrics{
			DispatchID:    dispatchID,
			ActionName:    action,
			Mode:          mode,
			ExecutionTime: clock.Since(start),
			Success:       true,
			Timestamp:     clock.Now(),
		}
		r.bus.Emit(ctx, event.Event{Type: event.ActionComplete, Action: action, DispatchID: dispatchID, Payload: payload, Metrics: &m})
		r.telemetry.EndDispatch(ctx, span, desc, pipeline.Completed.String(), 0, m.ExecutionTime, nil)
		return &DispatchResult{DispatchID: dispatchID, Outcome: pipeline.Completed, Payload: payload, Metrics: m}, nil
	}

	ec := core.NewExecutionContext(action, dispatchID, mode, payload, handlers)
	res, err := r.executor.Run(ctx, ec)
	if err != nil {
		r.telemetry.EndDispatch(ctx, span, desc, pipeline.Failed.String(), 0, clock.Since(start), err)
		return nil, err
	}
	elapsed := clock.Since(start)

	if res.Outcome != pipeline.Failed {
		if removed := r.registry.PruneOnce(action, res.Invoked); len(removed) > 0 {
			r.logger.Debug("One-shot handlers removed", "action", action, "handler_ids", removed)
		}
	}

	m := core.Metrics{
		DispatchID:    dispatchID,
		ActionName:    action,
		Mode:          mode,
		ExecutionTime: elapsed,
		HandlerCount:  len(handlers),
		InvokedCount:  len(res.Invoked),
		Success:       res.Outcome != pipeline.Failed,
		Error:         res.Err,
		Timestamp:     clock.Now(),
	}

	terminal := event.Event{Action: action, DispatchID: dispatchID, Payload: ec.Payload(), Metrics: &m}
	switch res.Outcome {
	case pipeline.Aborted:
		terminal.Type = event.ActionAbort
		terminal.Reason = res.AbortReason
	case pipeline.Failed:
		terminal.Type = event.ActionError
		terminal.Err = res.Err
	default:
		terminal.Type = event.ActionComplete
	}
	r.bus.Emit(ctx, terminal)

	r.logDispatch(m, res)
	r.telemetry.EndDispatch(ctx, span, desc, res.Outcome.String(), len(res.Invoked), elapsed, res.Err)

	out := &DispatchResult{
		DispatchID:  dispatchID,
		Outcome:     res.Outcome,
		AbortReason: res.AbortReason,
		Payload:     ec.Payload(),
		Results:     res.Results,
		Metrics:     m,
	}
	if res.Outcome == pipeline.Failed {
		return out, res.Err
	}
	return out, nil
}

type dispatchLogger interface {
	LogDispatch(action, mode string, handlers int, dur time.Duration, outcome string, err error)
}

func (r *ActionRegister) logDispatch(m core.Metrics, res pipeline.Result) {
	if dl, ok := r.logger.(dispatchLogger); ok {
		dl.LogDispatch(m.ActionName, m.Mode.String(), m.HandlerCount, m.ExecutionTime, res.Outcome.String(), res.Err)
		return
	}
	if res.Err != nil {
		r.logger.Error("Dispatch failed", "action", m.ActionName, "dispatch_id", m.DispatchID, "error", res.Err)
		return
	}
	r.logger.Debug("Dispatch completed", "action", m.ActionName, "dispatch_id", m.DispatchID, "outcome", res.Outcome.String())
}

func dispatchGuardKey(action string) string { return "dispatch:" + action }

// DispatchDebounced coalesces bursts of dispatches for action. It blocks
// until delay has passed without a newer call for the same action; only
// that last call dispatches and reports true. Superseded or cleared calls
// report false without error.
func (r *ActionRegister) DispatchDebounced(ctx context.Context, action string, payload any, delay time.Duration) (bool, error) {
	if err := r.guards.Debounce(ctx, dispatchGuardKey(action), delay); err != nil {
		if errors.Is(err, guard.ErrDebounceSuperseded) || errors.Is(err, guard.ErrGuardCleared) {
			return false, nil
		}
		return false, err
	}
	return true, r.Dispatch(ctx, action, payload)
}

// DispatchThrottled dispatches only when action's throttle window admits
// the call, reporting whether it ran.
func (r *ActionRegister) DispatchThrottled(ctx context.Context, action string, payload any, window time.Duration) (bool, error) {
	if !r.guards.Throttle(dispatchGuardKey(action), window) {
		r.logger.Trace("Dispatch throttled", "action", action)
		return false, nil
	}
	return true, r.Dispatch(ctx, action, payload)
}

// HandlerCount returns the number of handlers bound to action.
func (r *ActionRegister) HandlerCount(action string) int { return r.registry.Count(action) }

// HasHandlers reports whether action has at least one handler.
func (r *ActionRegister) HasHandlers(action string) bool { return r.registry.Has(action) }

// RegisteredActions returns the sorted names of actions with handlers.
func (r *ActionRegister) RegisteredActions() []string { return r.registry.Actions() }

// ClearAction removes every handler bound to action and returns how many
// were removed.
func (r *ActionRegister) ClearAction(action string) int { return r.registry.Clear(action) }

// ClearAll removes every handler of every action.
func (r *ActionRegister) ClearAll() { r.registry.ClearAll() }

// SetActionExecutionMode overrides the execution mode for action.
func (r *ActionRegister) SetActionExecutionMode(action string, mode core.ExecutionMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownExecutionMode, mode)
	}

	r.modesMu.Lock()
	defer r.modesMu.Unlock()
	r.modes[action] = mode
	return nil
}

// ActionExecutionMode returns the mode dispatches of action will use.
func (r *ActionRegister) ActionExecutionMode(action string) core.ExecutionMode {
	r.modesMu.RLock()
	defer r.modesMu.RUnlock()

	if m, ok := r.modes[action]; ok {
		return m
	}
	return r.defaultMode
}

// RemoveActionExecutionMode drops the override for action.
func (r *ActionRegister) RemoveActionExecutionMode(action string) {
	r.modesMu.Lock()
	defer r.modesMu.Unlock()
	delete(r.modes, action)
}

// On subscribes l to lifecycle events of type t.
func (r *ActionRegister) On(t event.Type, l event.Listener) event.ListenerID { return r.bus.On(t, l) }

// Once subscribes l for the next lifecycle event of type t.
func (r *ActionRegister) Once(t event.Type, l event.Listener) event.ListenerID {
	return r.bus.Once(t, l)
}

// Off removes a subscription.
func (r *ActionRegister) Off(t event.Type, id event.ListenerID) bool { return r.bus.Off(t, id) }

// RemoveAllListeners drops listeners of the given types, or of every type
// when none are given.
func (r *ActionRegister) RemoveAllListeners(types ...event.Type) { r.bus.RemoveAllListeners(types...) }
