package pipeline

import (
	"context"

	"github.com/hupe1980/actionregister/core"
)

// runSequential walks the snapshot in priority order. Each invocation runs
// on its own goroutine; blocking handlers are awaited until they return,
// non-blocking handlers until they return or call Next. After every
// invocation the executor checks for abort, then for a pending jump.
//
// A jump continues at the first snapshot index whose priority is less than
// or equal to the requested priority. That search covers the whole snapshot,
// so a jump may replay a higher band. A jump landing on the current handler
// is ignored, one finding no handler ends the run, and at most
// len(snapshot) jumps are honored per dispatch.
func (e *Executor) runSequential(ctx context.Context, ec *core.ExecutionContext) Result {
	handlers := ec.Handlers
	invoked := make([]*core.Registration, 0, len(handlers))
	jumps := 0

	for i := 0; i < len(handlers); i++ {
		if err := ctx.Err(); err != nil {
			return failed(err, invoked)
		}

		reg := handlers[i]
		ok, err := e.admit(ctx, ec, reg)
		if err != nil {
			return failed(err, invoked)
		}
		if !ok {
			continue
		}

		invoked = append(invoked, reg)
		if err := e.invokeSequential(ctx, ec, reg); err != nil {
			return failed(err, invoked)
		}

		if aborted, _ := ec.Aborted(); aborted {
			e.logger.Debug("Pipeline aborted", "action", ec.ActionName, "handler_id", reg.ID)
			return finished(ec, invoked)
		}

		target, jump := ec.TakeJump()
		if !jump {
			continue
		}
		if jumps >= len(handlers) {
			e.logger.Warn("Jump ignored: jump limit reached", "action", ec.ActionName, "handler_id", reg.ID, "target", target)
			continue
		}
		jumps++

		next := jumpIndex(handlers, target)
		if next == i {
			continue
		}
		e.logger.Trace("Jumping to priority", "action", ec.ActionName, "from", reg.Priority, "target", target, "index", next)
		i = next - 1
	}

	return finished(ec, invoked)
}

// jumpIndex returns the first index whose priority is <= target, or
// len(handlers) when there is none.
func jumpIndex(handlers []*core.Registration, target int) int {
	for idx, reg := range handlers {
		if reg.Priority <= target {
			return idx
		}
	}
	return len(handlers)
}

// invokeSequential starts reg and waits for its yield point. An error from a
// non-blocking handler that already yielded is logged and otherwise dropped.
func (e *Executor) invokeSequential(ctx context.Context, ec *core.ExecutionContext, reg *core.Registration) error {
	ctrl := core.NewController(ec, reg)
	done := make(chan error, 1)
	go func() { done <- e.call(ctx, ec, reg, ctrl) }()

	if reg.Blocking {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case err := <-done:
		if err != nil && yielded(ctrl) {
			e.logger.Error("Non-blocking handler failed after yielding", "action", ec.ActionName, "handler_id", reg.ID, "error", err)
			return nil
		}
		return err
	case <-ctrl.Yielded():
		go func() {
			if err := <-done; err != nil {
				e.logger.Error("Non-blocking handler failed after yielding", "action", ec.ActionName, "handler_id", reg.ID, "error", err)
			}
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func yielded(ctrl *core.Controller) bool {
	select {
	case <-ctrl.Yielded():
		return true
	default:
		return false
	}
}
