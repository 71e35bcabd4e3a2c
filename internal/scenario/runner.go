package scenario

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	actionregister "github.com/hupe1980/actionregister"
	"github.com/hupe1980/actionregister/core"
)

// Report is the outcome of one dispatch run.
type Report struct {
	Index      int      `json:"index"`
	Action     string   `json:"action"`
	DispatchID string   `json:"dispatch_id,omitempty"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason,omitempty"`
	Error      string   `json:"error,omitempty"`
	Payload    any      `json:"payload,omitempty"`
	Results    []any    `json:"results,omitempty"`
	DurationMs float64  `json:"duration_ms"`
	Invoked    int      `json:"invoked"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// Passed reports whether every expectation held.
func (r Report) Passed() bool { return len(r.Mismatches) == 0 }

// ErrScriptedFailure is wrapped by errors returned from fail steps.
var ErrScriptedFailure = errors.New("scenario: scripted failure")

// Install applies s.Config execution modes and registers every enabled
// handler on r. It returns the unregister functions in registration order.
func (s *Scenario) Install(r *actionregister.ActionRegister) ([]func(), error) {
	if s.Config != nil {
		for action, mode := range s.Config.ActionExecutionModes {
			if err := r.SetActionExecutionMode(action, mode); err != nil {
				return nil, err
			}
		}
	}

	var unregister []func()
	for _, h := range s.Handlers {
		if h.Disabled {
			continue
		}
		unregister = append(unregister, r.Register(h.Action, h.handlerFunc(), h.options()...))
	}
	return unregister, nil
}

// Run installs s on r and executes the dispatches in order. Expectation
// mismatches are reported, not returned as errors; the error is reserved
// for problems such as invalid modes or context cancellation.
func (s *Scenario) Run(ctx context.Context, r *actionregister.ActionRegister) ([]Report, error) {
	if _, err := s.Install(r); err != nil {
		return nil, err
	}

	var reports []Report
	for i, d := range s.Dispatches {
		repeat := d.Repeat
		if repeat == 0 {
			repeat = 1
		}
		for n := 0; n < repeat; n++ {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			rep, err := runDispatch(ctx, r, i, d)
			if err != nil {
				return reports, err
			}
			reports = append(reports, rep)
		}
	}
	return reports, nil
}

func runDispatch(ctx context.Context, r *actionregister.ActionRegister, index int, d Dispatch) (Report, error) {
	res, err := r.DispatchWithResult(ctx, d.Action, d.Payload)
	if res == nil {
		return Report{}, err
	}

	rep := Report{
		Index:      index,
		Action:     d.Action,
		DispatchID: res.DispatchID,
		Outcome:    res.Outcome.String(),
		Reason:     res.AbortReason,
		Payload:    res.Payload,
		Results:    res.Results,
		DurationMs: res.Metrics.ExecutionTimeMs(),
		Invoked:    res.Metrics.InvokedCount,
	}
	if err != nil {
		rep.Error = err.Error()
	}
	if d.Expect != "" && d.Expect != rep.Outcome {
		rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("outcome: want %s, got %s", d.Expect, rep.Outcome))
	}
	if d.ExpectPayload != nil && !samePayload(d.ExpectPayload, rep.Payload) {
		rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("payload: want %v, got %v", d.ExpectPayload, rep.Payload))
	}
	return rep, nil
}

func (h Handler) options() []func(c *core.HandlerConfig) {
	opts := []func(c *core.HandlerConfig){
		core.WithID(h.ID),
		core.WithPriority(h.Priority),
	}
	if h.Blocking {
		opts = append(opts, core.WithBlocking())
	}
	if h.Once {
		opts = append(opts, core.WithOnce())
	}
	if h.Middleware {
		opts = append(opts, core.AsMiddleware())
	}
	if h.Debounce > 0 {
		opts = append(opts, core.WithDebounce(h.Debounce))
	}
	if h.Throttle > 0 {
		opts = append(opts, core.WithThrottle(h.Throttle))
	}
	if h.Accepts != "" {
		kind := h.Accepts
		opts = append(opts, core.WithValidation(func(p any) bool { return payloadKind(p) == kind }))
	}
	return opts
}

func (h Handler) handlerFunc() core.HandlerFunc {
	steps := h.Steps
	return func(ctx context.Context, _ any, c *core.Controller) error {
		for _, st := range steps {
			switch st.Op {
			case OpSet:
				v := st.Value
				c.ModifyPayload(func(any) any { return v })
			case OpAdd:
				c.ModifyPayload(func(p any) any { return arith(p, st.Value, false) })
			case OpMultiply:
				c.ModifyPayload(func(p any) any { return arith(p, st.Value, true) })
			case OpNext:
				c.Next()
			case OpAbort:
				c.Abort(st.Reason)
				return nil
			case OpFail:
				msg := st.Message
				if msg == "" {
					msg = "handler " + c.HandlerID()
				}
				return fmt.Errorf("%w: %s", ErrScriptedFailure, msg)
			case OpSleep:
				t := time.NewTimer(st.Duration)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				}
			case OpJump:
				c.JumpToPriority(st.Priority)
			case OpResult:
				c.SetResult(st.Value)
			case OpRecord:
				c.SetResult(c.GetPayload())
			}
		}
		return nil
	}
}

func payloadKind(p any) string {
	switch p.(type) {
	case int, int64, float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "map"
	default:
		return ""
	}
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// arith combines p and v, keeping integers integral. A non-numeric payload
// is left unchanged.
func arith(p, v any, multiply bool) any {
	if a, ok := p.(int); ok {
		if b, ok := v.(int); ok {
			if multiply {
				return a * b
			}
			return a + b
		}
	}
	a, ok := toFloat(p)
	if !ok {
		return p
	}
	b, _ := toFloat(v)
	if multiply {
		return a * b
	}
	return a + b
}

func samePayload(want, got any) bool {
	if a, ok := toFloat(want); ok {
		b, ok := toFloat(got)
		return ok && a == b
	}
	return reflect.DeepEqual(want, got)
}
