package pipeline

import (
	"context"
	"sync"

	"github.com/hupe1980/actionregister/core"
)

type settlement struct {
	reg     *core.Registration
	ctrl    *core.Controller
	err     error
	skipped bool
}

// runRace starts every admitted handler concurrently and resolves with the
// first handler to settle. Losing handlers are not cancelled; their outcomes
// are discarded. The run is Aborted only when the winning handler itself
// called Abort.
func (e *Executor) runRace(ctx context.Context, ec *core.ExecutionContext) Result {
	var (
		mu      sync.Mutex
		invoked = make([]*core.Registration, 0, len(ec.Handlers))
	)
	snapshotInvoked := func() []*core.Registration {
		mu.Lock()
		defer mu.Unlock()
		out := make([]*core.Registration, len(invoked))
		copy(out, invoked)
		return out
	}

	settled := make(chan settlement, len(ec.Handlers))
	for _, reg := range ec.Handlers {
		reg := reg
		go func() {
			ok, err := e.admit(ctx, ec, reg)
			if err != nil || !ok {
				settled <- settlement{reg: reg, skipped: true}
				return
			}

			mu.Lock()
			invoked = append(invoked, reg)
			mu.Unlock()

			ctrl := core.NewController(ec, reg)
			settled <- settlement{reg: reg, ctrl: ctrl, err: e.call(ctx, ec, reg, ctrl)}
		}()
	}

	for pending := len(ec.Handlers); pending > 0; pending-- {
		var s settlement
		select {
		case s = <-settled:
		case <-ctx.Done():
			return failed(ctx.Err(), snapshotInvoked())
		}
		if s.skipped {
			continue
		}

		e.logger.Debug("Race settled", "action", ec.ActionName, "handler_id", s.reg.ID)
		switch {
		case s.err != nil:
			return failed(s.err, snapshotInvoked())
		case s.ctrl.Aborted():
			return Result{Outcome: Aborted, AbortReason: s.ctrl.AbortReason(), Invoked: snapshotInvoked()}
		default:
			return Result{Outcome: Completed, Invoked: snapshotInvoked()}
		}
	}

	if err := ctx.Err(); err != nil {
		return failed(err, snapshotInvoked())
	}
	return Result{Outcome: Completed, Invoked: snapshotInvoked()}
}
