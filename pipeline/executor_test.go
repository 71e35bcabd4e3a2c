package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionregister/core"
	"github.com/hupe1980/actionregister/guard"
)

// recorder collects handler ids in invocation order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newReg(id string, priority int, fn core.HandlerFunc, optFns ...func(*core.HandlerConfig)) *core.Registration {
	cfg := core.HandlerConfig{ID: id, Priority: priority}
	for _, o := range optFns {
		o(&cfg)
	}
	return &core.Registration{HandlerConfig: cfg, Action: "test", Handler: fn}
}

func recording(rec *recorder, id string) core.HandlerFunc {
	return func(context.Context, any, *core.Controller) error {
		rec.add(id)
		return nil
	}
}

func run(t *testing.T, mode core.ExecutionMode, payload any, regs ...*core.Registration) (Result, *core.ExecutionContext) {
	t.Helper()
	ec := core.NewExecutionContext("test", "d-1", mode, payload, regs)
	res, err := NewExecutor().Run(context.Background(), ec)
	require.NoError(t, err)
	return res, ec
}

func invokedIDs(res Result) []string {
	out := make([]string, len(res.Invoked))
	for i, r := range res.Invoked {
		out[i] = r.ID
	}
	return out
}

func TestRun_UnknownMode(t *testing.T) {
	ec := core.NewExecutionContext("test", "d-1", core.ExecutionMode("bogus"), nil, nil)
	_, err := NewExecutor().Run(context.Background(), ec)
	assert.ErrorIs(t, err, core.ErrUnknownExecutionMode)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestSequential_RunsInSnapshotOrder(t *testing.T) {
	rec := &recorder{}
	res, _ := run(t, core.ModeSequential, nil,
		newReg("a", 30, recording(rec, "a")),
		newReg("b", 20, recording(rec, "b")),
		newReg("c", 10, recording(rec, "c")),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []string{"a", "b", "c"}, rec.get())
	assert.Equal(t, []string{"a", "b", "c"}, invokedIDs(res))
}

func TestSequential_ModifiedPayloadVisibleDownstream(t *testing.T) {
	var observed any
	h1 := newReg("h1", 10, func(_ context.Context, _ any, c *core.Controller) error {
		c.ModifyPayload(func(p any) any { return p.(int) * 2 })
		c.Next()
		return nil
	})
	h2 := newReg("h2", 0, func(_ context.Context, p any, c *core.Controller) error {
		observed = p
		return nil
	})

	res, ec := run(t, core.ModeSequential, 5, h1, h2)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 10, observed)
	assert.Equal(t, 10, ec.Payload())
}

func TestSequential_AbortStopsLowerPriorities(t *testing.T) {
	rec := &recorder{}
	res, _ := run(t, core.ModeSequential, nil,
		newReg("first", 20, recording(rec, "first")),
		newReg("stopper", 10, func(_ context.Context, _ any, c *core.Controller) error {
			rec.add("stopper")
			c.Abort("invalid order")
			return nil
		}),
		newReg("never", 5, recording(rec, "never")),
	)

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, "invalid order", res.AbortReason)
	assert.Equal(t, []string{"first", "stopper"}, rec.get())
	assert.Equal(t, []string{"first", "stopper"}, invokedIDs(res))
}

func TestSequential_ErrorHaltsAndIsUnwrapped(t *testing.T) {
	sentinel := errors.New("boom")
	rec := &recorder{}
	res, _ := run(t, core.ModeSequential, nil,
		newReg("ok", 2, recording(rec, "ok")),
		newReg("bad", 1, func(context.Context, any, *core.Controller) error { return sentinel }),
		newReg("never", 0, recording(rec, "never")),
	)

	assert.Equal(t, Failed, res.Outcome)
	assert.Same(t, sentinel, res.Err)
	assert.Equal(t, []string{"ok"}, rec.get())
}

func TestSequential_PanicBecomesError(t *testing.T) {
	res, _ := run(t, core.ModeSequential, nil,
		newReg("p", 0, func(context.Context, any, *core.Controller) error { panic("kaboom") }),
	)

	assert.Equal(t, Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrHandlerPanic)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestSequential_ConditionAndValidationSkip(t *testing.T) {
	rec := &recorder{}
	res, _ := run(t, core.ModeSequential, 3,
		newReg("cond", 3, recording(rec, "cond"), core.WithCondition(func() bool { return false })),
		newReg("valid", 2, recording(rec, "valid"), core.WithValidation(func(p any) bool { return p.(int) > 10 })),
		newReg("runs", 1, recording(rec, "runs"), core.WithValidation(func(p any) bool { return p.(int) == 3 })),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []string{"runs"}, rec.get())
	assert.Equal(t, []string{"runs"}, invokedIDs(res))
}

func TestSequential_JumpSkipsBand(t *testing.T) {
	rec := &recorder{}
	res, _ := run(t, core.ModeSequential, nil,
		newReg("jumper", 100, func(_ context.Context, _ any, c *core.Controller) error {
			rec.add("jumper")
			c.JumpToPriority(10)
			return nil
		}),
		newReg("skipped-50", 50, recording(rec, "skipped-50")),
		newReg("skipped-20", 20, recording(rec, "skipped-20")),
		newReg("landing", 10, recording(rec, "landing")),
		newReg("tail", 0, recording(rec, "tail")),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []string{"jumper", "landing", "tail"}, rec.get())
}

func TestSequential_JumpToMissingPriorityLandsOnNextLower(t *testing.T) {
	rec := &recorder{}
	run(t, core.ModeSequential, nil,
		newReg("jumper", 100, func(_ context.Context, _ any, c *core.Controller) error {
			rec.add("jumper")
			c.JumpToPriority(15)
			return nil
		}),
		newReg("twenty", 20, recording(rec, "twenty")),
		newReg("ten", 10, recording(rec, "ten")),
	)

	assert.Equal(t, []string{"jumper", "ten"}, rec.get())
}

func TestSequential_JumpBelowAllEndsRun(t *testing.T) {
	rec := &recorder{}
	res, _ := run(t, core.ModeSequential, nil,
		newReg("jumper", 1, func(_ context.Context, _ any, c *core.Controller) error {
			rec.add("jumper")
			c.JumpToPriority(-100)
			return nil
		}),
		newReg("zero", 0, recording(rec, "zero")),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []string{"jumper"}, rec.get())
}

func TestSequential_JumpBackwardIsBounded(t *testing.T) {
	var calls atomic.Int32
	res, _ := run(t, core.ModeSequential, nil,
		newReg("top", 10, func(context.Context, any, *core.Controller) error {
			calls.Add(1)
			return nil
		}),
		newReg("looper", 0, func(_ context.Context, _ any, c *core.Controller) error {
			c.JumpToPriority(10)
			return nil
		}),
	)

	assert.Equal(t, Completed, res.Outcome)
	// One initial pass plus one replay per honored jump (len(snapshot) == 2).
	assert.Equal(t, int32(3), calls.Load())
}

func TestSequential_JumpToOwnPriorityIgnored(t *testing.T) {
	rec := &recorder{}
	run(t, core.ModeSequential, nil,
		newReg("self", 5, func(_ context.Context, _ any, c *core.Controller) error {
			rec.add("self")
			c.JumpToPriority(5)
			return nil
		}),
		newReg("next", 1, recording(rec, "next")),
	)

	assert.Equal(t, []string{"self", "next"}, rec.get())
}

func TestSequential_NonBlockingReleasesOnNext(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	rec := &recorder{}

	res, _ := run(t, core.ModeSequential, nil,
		newReg("slow", 10, func(_ context.Context, _ any, c *core.Controller) error {
			rec.add("slow:start")
			c.Next()
			<-release
			close(finished)
			return nil
		}),
		newReg("fast", 0, func(context.Context, any, *core.Controller) error {
			rec.add("fast")
			close(release)
			return nil
		}),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []string{"slow:start", "fast"}, rec.get())
	<-finished
}

func TestSequential_NonBlockingErrorAfterYieldIsDetached(t *testing.T) {
	rec := &recorder{}
	res, _ := run(t, core.ModeSequential, nil,
		newReg("yields", 10, func(_ context.Context, _ any, c *core.Controller) error {
			c.Next()
			return errors.New("late failure")
		}),
		newReg("after", 0, recording(rec, "after")),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []string{"after"}, rec.get())
}

func TestSequential_JumpAfterYieldIgnored(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	jumped := make(chan struct{})

	res, _ := run(t, core.ModeSequential, nil,
		newReg("yields", 20, func(_ context.Context, _ any, c *core.Controller) error {
			rec.add("yields")
			c.Next()
			<-started
			c.JumpToPriority(20)
			close(jumped)
			return nil
		}),
		newReg("middle", 10, func(context.Context, any, *core.Controller) error {
			rec.add("middle")
			close(started)
			<-jumped
			return nil
		}),
		newReg("tail", 0, recording(rec, "tail")),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []string{"yields", "middle", "tail"}, rec.get())
}

func TestSequential_BlockingWaitsForReturn(t *testing.T) {
	var done atomic.Bool
	var sawDone bool

	run(t, core.ModeSequential, nil,
		newReg("blocking", 10, func(_ context.Context, _ any, c *core.Controller) error {
			c.Next()
			time.Sleep(20 * time.Millisecond)
			done.Store(true)
			return nil
		}, core.WithBlocking()),
		newReg("after", 0, func(context.Context, any, *core.Controller) error {
			sawDone = done.Load()
			return nil
		}),
	)

	assert.True(t, sawDone)
}

func TestSequential_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	ec := core.NewExecutionContext("test", "d-1", core.ModeSequential, nil, []*core.Registration{
		newReg("canceller", 1, func(context.Context, any, *core.Controller) error {
			rec.add("canceller")
			cancel()
			return nil
		}),
		newReg("never", 0, recording(rec, "never")),
	})

	res, err := NewExecutor().Run(ctx, ec)
	require.NoError(t, err)
	assert.Equal(t, Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []string{"canceller"}, rec.get())
}

func TestSequential_ThrottledHandlerSkipped(t *testing.T) {
	guards := guard.New()
	t.Cleanup(guards.ClearAll)
	exec := NewExecutor(func(o *Options) { o.Guards = guards })

	var calls atomic.Int32
	reg := newReg("throttled", 0, func(context.Context, any, *core.Controller) error {
		calls.Add(1)
		return nil
	}, core.WithThrottle(time.Hour))

	for i := 0; i < 3; i++ {
		ec := core.NewExecutionContext("test", "d", core.ModeSequential, nil, []*core.Registration{reg})
		_, err := exec.Run(context.Background(), ec)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestSequential_DebouncedHandlerCoalesces(t *testing.T) {
	exec := NewExecutor()

	var calls atomic.Int32
	reg := newReg("debounced", 0, func(context.Context, any, *core.Controller) error {
		calls.Add(1)
		return nil
	}, core.WithDebounce(30*time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ec := core.NewExecutionContext("test", "d", core.ModeSequential, nil, []*core.Registration{reg})
			res, err := exec.Run(context.Background(), ec)
			assert.NoError(t, err)
			assert.Equal(t, Completed, res.Outcome)
		}()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestSequential_CollectsResults(t *testing.T) {
	res, _ := run(t, core.ModeSequential, nil,
		newReg("a", 1, func(_ context.Context, _ any, c *core.Controller) error { c.SetResult("a"); return nil }),
		newReg("b", 0, func(_ context.Context, _ any, c *core.Controller) error { c.SetResult("b"); return nil }),
	)
	assert.Equal(t, []any{"a", "b"}, res.Results)
}

func TestParallel_RunsAllConcurrently(t *testing.T) {
	const n = 4
	var started sync.WaitGroup
	started.Add(n)
	gate := make(chan struct{})

	regs := make([]*core.Registration, 0, n)
	for i := 0; i < n; i++ {
		regs = append(regs, newReg(string(rune('a'+i)), i, func(context.Context, any, *core.Controller) error {
			started.Done()
			<-gate
			return nil
		}))
	}

	go func() {
		started.Wait()
		close(gate)
	}()

	res, _ := run(t, core.ModeParallel, nil, regs...)
	assert.Equal(t, Completed, res.Outcome)
	assert.Len(t, res.Invoked, n)
}

func TestParallel_FirstErrorAfterAllSettle(t *testing.T) {
	sentinel := errors.New("fast failure")
	var slowFinished atomic.Bool

	res, _ := run(t, core.ModeParallel, nil,
		newReg("fails", 1, func(context.Context, any, *core.Controller) error { return sentinel }),
		newReg("slow", 0, func(context.Context, any, *core.Controller) error {
			time.Sleep(30 * time.Millisecond)
			slowFinished.Store(true)
			return nil
		}),
	)

	assert.Equal(t, Failed, res.Outcome)
	assert.Same(t, sentinel, res.Err)
	assert.True(t, slowFinished.Load(), "siblings settle before the run resolves")
}

func TestParallel_AbortIsCooperative(t *testing.T) {
	var siblingFinished atomic.Bool

	res, _ := run(t, core.ModeParallel, nil,
		newReg("aborter", 1, func(_ context.Context, _ any, c *core.Controller) error {
			c.Abort("enough")
			return nil
		}),
		newReg("sibling", 0, func(context.Context, any, *core.Controller) error {
			time.Sleep(20 * time.Millisecond)
			siblingFinished.Store(true)
			return nil
		}),
	)

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, "enough", res.AbortReason)
	assert.True(t, siblingFinished.Load())
	assert.Len(t, res.Invoked, 2)
}

func TestParallel_SkipsIneligible(t *testing.T) {
	rec := &recorder{}
	res, _ := run(t, core.ModeParallel, nil,
		newReg("yes", 1, recording(rec, "yes")),
		newReg("no", 0, recording(rec, "no"), core.WithCondition(func() bool { return false })),
	)

	assert.Equal(t, []string{"yes"}, rec.get())
	assert.Equal(t, []string{"yes"}, invokedIDs(res))
}

func TestRace_FastRejectionWins(t *testing.T) {
	sentinel := errors.New("instant rejection")
	slow := func(context.Context, any, *core.Controller) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	start := time.Now()
	res, _ := run(t, core.ModeRace, nil,
		newReg("slow-a", 3, slow),
		newReg("rejects", 2, func(context.Context, any, *core.Controller) error { return sentinel }),
		newReg("slow-b", 1, slow),
	)
	elapsed := time.Since(start)

	assert.Equal(t, Failed, res.Outcome)
	assert.Same(t, sentinel, res.Err)
	assert.Less(t, elapsed, 40*time.Millisecond)
}

func TestRace_FirstSuccessCompletes(t *testing.T) {
	res, _ := run(t, core.ModeRace, nil,
		newReg("fast", 0, func(context.Context, any, *core.Controller) error { return nil }),
		newReg("slow-fail", 1, func(context.Context, any, *core.Controller) error {
			time.Sleep(30 * time.Millisecond)
			return errors.New("too late")
		}),
	)

	assert.Equal(t, Completed, res.Outcome)
	assert.NoError(t, res.Err)
}

func TestRace_AbortOnlyFromWinner(t *testing.T) {
	res, _ := run(t, core.ModeRace, nil,
		newReg("winner", 0, func(_ context.Context, _ any, c *core.Controller) error {
			c.Abort("winner stopped")
			return nil
		}),
		newReg("loser", 1, func(context.Context, any, *core.Controller) error {
			time.Sleep(30 * time.Millisecond)
			return nil
		}),
	)
	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, "winner stopped", res.AbortReason)

	res, _ = run(t, core.ModeRace, nil,
		newReg("winner", 0, func(context.Context, any, *core.Controller) error { return nil }),
		newReg("late-aborter", 1, func(_ context.Context, _ any, c *core.Controller) error {
			time.Sleep(30 * time.Millisecond)
			c.Abort("too late")
			return nil
		}),
	)
	assert.Equal(t, Completed, res.Outcome)

	res, _ = run(t, core.ModeRace, nil,
		newReg("loser", 1, func(_ context.Context, _ any, c *core.Controller) error {
			c.Abort("loser")
			time.Sleep(80 * time.Millisecond)
			return nil
		}),
		newReg("winner", 0, func(_ context.Context, _ any, c *core.Controller) error {
			time.Sleep(20 * time.Millisecond)
			c.Abort("winner")
			return nil
		}),
	)
	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, "winner", res.AbortReason)
}

func TestRace_AllSkippedCompletes(t *testing.T) {
	never := func() bool { return false }
	res, _ := run(t, core.ModeRace, nil,
		newReg("a", 0, func(context.Context, any, *core.Controller) error { return errors.New("unreachable") }, core.WithCondition(never)),
	)
	assert.Equal(t, Completed, res.Outcome)
	assert.Empty(t, res.Invoked)
}

func TestEmptySnapshotCompletes(t *testing.T) {
	for _, mode := range []core.ExecutionMode{core.ModeSequential, core.ModeParallel, core.ModeRace} {
		res, _ := run(t, mode, nil)
		assert.Equal(t, Completed, res.Outcome, mode)
	}
}
