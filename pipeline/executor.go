package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/hupe1980/actionregister/core"
	"github.com/hupe1980/actionregister/guard"
	"github.com/hupe1980/actionregister/logging"
)

// Outcome is the terminal state of one dispatch.
type Outcome int

const (
	// Completed means the run ended without abort or failure.
	Completed Outcome = iota
	// Aborted means a handler called Controller.Abort.
	Aborted
	// Failed means a handler returned an error or panicked.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes how a run ended.
type Result struct {
	Outcome     Outcome
	AbortReason string
	// Err is the handler error for Failed runs, returned unwrapped.
	Err error
	// Invoked lists the registrations actually started during the run.
	Invoked []*core.Registration
	// Results holds values recorded through Controller.SetResult.
	Results []any
}

// Options configures an Executor.
type Options struct {
	// Guards backs per-handler debounce and throttle. Defaults to a private station.
	Guards *guard.Station
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Executor runs a handler snapshot under one of the execution modes. It
// holds no per-dispatch state and is safe for concurrent use.
type Executor struct {
	guards *guard.Station
	logger logging.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Guards == nil {
		opts.Guards = guard.New(func(o *guard.Options) { o.Logger = opts.Logger })
	}
	return &Executor{guards: opts.Guards, logger: logging.OrNoOp(opts.Logger)}
}

// Run executes ec.Handlers according to ec.Mode. The returned error is
// reserved for configuration problems such as an unknown mode; handler
// failures are reported through Result.
func (e *Executor) Run(ctx context.Context, ec *core.ExecutionContext) (Result, error) {
	var res Result
	switch ec.Mode {
	case core.ModeSequential:
		res = e.runSequential(ctx, ec)
	case core.ModeParallel:
		res = e.runParallel(ctx, ec)
	case core.ModeRace:
		res = e.runRace(ctx, ec)
	default:
		return Result{}, fmt.Errorf("%w: %q", core.ErrUnknownExecutionMode, ec.Mode)
	}
	res.Results = ec.Results()
	return res, nil
}

// admit applies condition, validation and guards. It returns false when the
// handler must be skipped; a non-nil error only when ctx ended while waiting
// on a debounce.
func (e *Executor) admit(ctx context.Context, ec *core.ExecutionContext, reg *core.Registration) (bool, error) {
	if !reg.Admits(ec.Payload()) {
		e.logger.Trace("Handler skipped by condition or validation", "action", ec.ActionName, "handler_id", reg.ID)
		return false, nil
	}
	if reg.Throttle > 0 && !e.guards.Throttle(reg.GuardKey(), reg.Throttle) {
		e.logger.Trace("Handler skipped by throttle", "action", ec.ActionName, "handler_id", reg.ID)
		return false, nil
	}
	if reg.Debounce > 0 {
		if err := e.guards.Debounce(ctx, reg.GuardKey(), reg.Debounce); err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			e.logger.Trace("Handler skipped by debounce", "action", ec.ActionName, "handler_id", reg.ID, "reason", err)
			return false, nil
		}
	}
	return true, nil
}

// call invokes the handler on the calling goroutine, converting a panic into
// an error wrapping core.ErrHandlerPanic.
func (e *Executor) call(ctx context.Context, ec *core.ExecutionContext, reg *core.Registration, ctrl *core.Controller) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Handler panicked", "action", ec.ActionName, "handler_id", reg.ID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: handler %s: %v", core.ErrHandlerPanic, reg.ID, r)
		}
	}()
	return reg.Handler(ctx, ec.Payload(), ctrl)
}

func failed(err error, invoked []*core.Registration) Result {
	return Result{Outcome: Failed, Err: err, Invoked: invoked}
}

func finished(ec *core.ExecutionContext, invoked []*core.Registration) Result {
	if aborted, reason := ec.Aborted(); aborted {
		return Result{Outcome: Aborted, AbortReason: reason, Invoked: invoked}
	}
	return Result{Outcome: Completed, Invoked: invoked}
}
