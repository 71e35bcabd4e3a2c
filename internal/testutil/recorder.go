package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/actionregister/event"
)

// Subscriber is the part of the event surface a Recorder attaches to.
type Subscriber interface {
	On(t event.Type, l event.Listener) event.ListenerID
}

// Recorder captures lifecycle events in delivery order.
// Example:
//
//	rec := testutil.NewRecorder()
//	rec.Attach(register)
//	_ = register.Dispatch(ctx, "x", 1)
//	rec.Types() // [action:start action:complete]
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Attach subscribes the recorder to the given types, or to every lifecycle
// type when none are given.
func (r *Recorder) Attach(s Subscriber, types ...event.Type) *Recorder {
	if len(types) == 0 {
		types = event.Types
	}
	for _, t := range types {
		s.On(t, r.Listen)
	}
	return r
}

// Listen is an event.Listener appending ev.
func (r *Recorder) Listen(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Last returns the most recent event of type t.
func (r *Recorder) Last(t event.Type) (event.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return event.Event{}, false
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
