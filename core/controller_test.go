package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(payload any) (*ExecutionContext, *Registration) {
	reg := &Registration{Action: "test", HandlerConfig: HandlerConfig{ID: "h1"}}
	return NewExecutionContext("test", "d-1", ModeSequential, payload, []*Registration{reg}), reg
}

func TestController_ModifyPayloadComposes(t *testing.T) {
	ec, reg := newTestContext(3)

	a := NewController(ec, reg)
	a.ModifyPayload(func(p any) any { return p.(int) + 1 })

	b := NewController(ec, reg)
	assert.Equal(t, 4, b.GetPayload())
	b.ModifyPayload(func(p any) any { return p.(int) * 10 })

	assert.Equal(t, 40, ec.Payload())
}

func TestController_AbortIsMonotonic(t *testing.T) {
	ec, reg := newTestContext(nil)

	first := NewController(ec, reg)
	second := NewController(ec, reg)

	first.Abort("first")
	second.Abort("second")

	aborted, reason := ec.Aborted()
	assert.True(t, aborted)
	assert.Equal(t, "first", reason)
	assert.True(t, first.Aborted())
	assert.True(t, second.Aborted())
}

func TestController_AbortTrackedPerInvocation(t *testing.T) {
	ec, reg := newTestContext(nil)

	quiet := NewController(ec, reg)
	loud := NewController(ec, reg)
	loud.Abort("stop")

	assert.False(t, quiet.Aborted())
	assert.True(t, loud.Aborted())
}

func TestController_JumpIsConsumedOnce(t *testing.T) {
	ec, reg := newTestContext(nil)
	c := NewController(ec, reg)

	c.JumpToPriority(5)

	target, ok := ec.TakeJump()
	require.True(t, ok)
	assert.Equal(t, 5, target)

	_, ok = ec.TakeJump()
	assert.False(t, ok)
}

func TestController_NextClosesYieldOnce(t *testing.T) {
	ec, reg := newTestContext(nil)
	c := NewController(ec, reg)

	select {
	case <-c.Yielded():
		t.Fatal("yield closed before Next")
	default:
	}

	c.Next()
	c.Next()

	select {
	case <-c.Yielded():
	default:
		t.Fatal("yield not closed after Next")
	}
}

func TestController_Results(t *testing.T) {
	ec, reg := newTestContext(nil)
	NewController(ec, reg).SetResult("a")
	NewController(ec, reg).SetResult(2)

	results := ec.Results()
	assert.Equal(t, []any{"a", 2}, results)

	results[0] = "mutated"
	assert.Equal(t, "a", ec.Results()[0])
}

func TestController_ConcurrentModify(t *testing.T) {
	ec, reg := newTestContext(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			NewController(ec, reg).ModifyPayload(func(p any) any { return p.(int) + 1 })
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, ec.Payload())
}

func TestPayloadAs(t *testing.T) {
	ec, reg := newTestContext("hello")
	c := NewController(ec, reg)

	s, ok := PayloadAs[string](c)
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = PayloadAs[int](c)
	assert.False(t, ok)
}

func TestController_Identity(t *testing.T) {
	ec, reg := newTestContext(nil)
	c := NewController(ec, reg)
	assert.Equal(t, "h1", c.HandlerID())
	assert.Equal(t, "test", c.ActionName())
	assert.Equal(t, "d-1", c.DispatchID())
}

func TestController_AbortReasonPerInvocation(t *testing.T) {
	ec, reg := newTestContext(nil)

	early := NewController(ec, reg)
	late := NewController(ec, reg)
	early.Abort("early")
	late.Abort("late")
	late.Abort("ignored")

	_, reason := ec.Aborted()
	assert.Equal(t, "early", reason)
	assert.Equal(t, "early", early.AbortReason())
	assert.Equal(t, "late", late.AbortReason())
	assert.Empty(t, NewController(ec, reg).AbortReason())
}

func TestController_JumpAfterNext(t *testing.T) {
	ec, reg := newTestContext(nil)

	c := NewController(ec, reg)
	c.Next()
	c.JumpToPriority(5)
	_, ok := ec.TakeJump()
	assert.False(t, ok)

	blocking := &Registration{Action: "test", HandlerConfig: HandlerConfig{ID: "b", Blocking: true}}
	c = NewController(ec, blocking)
	c.Next()
	c.JumpToPriority(5)
	target, ok := ec.TakeJump()
	require.True(t, ok)
	assert.Equal(t, 5, target)
}
