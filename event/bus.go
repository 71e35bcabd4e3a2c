// Package event implements the publish/subscribe facility for pipeline
// lifecycle notifications.
//
// Delivery is synchronous and in subscription order. Each listener is
// isolated: a returned error is logged, a panic is recovered and logged, and
// delivery continues with the next listener. Nothing a listener does can
// abort the dispatch that emitted the event.
package event

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/actionregister/internal/clock"
	"github.com/hupe1980/actionregister/logging"
)

// Listener receives events of the type it subscribed to.
type Listener func(ctx context.Context, ev Event) error

// ListenerID identifies a subscription for Off.
type ListenerID uint64

type entry struct {
	id       ListenerID
	listener Listener
	once     bool
}

// Bus is safe for concurrent use. Listeners may subscribe or unsubscribe
// from inside a listener; the change applies from the next Emit.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Type][]entry
	nextID    ListenerID
	logger    logging.Logger
}

// NewBus creates a bus with no listeners. A nil logger discards output.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		listeners: make(map[Type][]entry),
		logger:    logging.OrNoOp(logger),
	}
}

// On subscribes l to events of type t.
func (b *Bus) On(t Type, l Listener) ListenerID {
	return b.add(t, l, false)
}

// Once subscribes l for the next event of type t only.
func (b *Bus) Once(t Type, l Listener) ListenerID {
	return b.add(t, l, true)
}

func (b *Bus) add(t Type, l Listener, once bool) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners[t] = append(b.listeners[t], entry{id: b.nextID, listener: l, once: once})
	return b.nextID
}

// Off removes the subscription id from type t. It reports whether it was found.
func (b *Bus) Off(t Type, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[t]
	idx := slices.IndexFunc(entries, func(e entry) bool { return e.id == id })
	if idx < 0 {
		return false
	}
	b.listeners[t] = slices.Delete(slices.Clone(entries), idx, idx+1)
	return true
}

// RemoveAllListeners drops every listener of the given types, or of all
// types when none are given.
func (b *Bus) RemoveAllListeners(types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(types) == 0 {
		b.listeners = make(map[Type][]entry)
		return
	}
	for _, t := range types {
		delete(b.listeners, t)
	}
}

// ListenerCount returns the number of listeners subscribed to t.
func (b *Bus) ListenerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[t])
}

// Emit delivers ev to every listener of ev.Type. A zero Timestamp is filled in.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = clock.Now()
	}

	b.mu.Lock()
	entries := b.listeners[ev.Type]
	if len(entries) == 0 {
		b.mu.Unlock()
		return
	}
	if slices.ContainsFunc(entries, func(e entry) bool { return e.once }) {
		b.listeners[ev.Type] = slices.DeleteFunc(slices.Clone(entries), func(e entry) bool { return e.once })
	}
	b.mu.Unlock()

	for _, e := range entries {
		b.deliver(ctx, e, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, e entry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panicked", "event", string(ev.Type), "listener_id", uint64(e.id), "panic", fmt.Sprint(r))
		}
	}()

	if err := e.listener(ctx, ev); err != nil {
		b.logger.Warn("Event listener failed", "event", string(ev.Type), "listener_id", uint64(e.id), "error", err)
	}
}
