// Package guard provides per-key admission control: a trailing-edge
// debounce and a leading-edge throttle with a single cool-down per key.
//
// Keys are arbitrary strings and independent of any pipeline. The executor
// uses "<action>#<handler id>" for per-handler guards and the facade uses
// "dispatch:<action>" for guarded dispatches.
package guard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/actionregister/internal/clock"
	"github.com/hupe1980/actionregister/logging"
)

var (
	// ErrDebounceSuperseded is returned to a debounce waiter replaced by a newer call.
	ErrDebounceSuperseded = errors.New("guard: debounce superseded")

	// ErrGuardCleared is returned to a debounce waiter whose key was cleared.
	ErrGuardCleared = errors.New("guard: guard cleared")
)

// state is created lazily per key and lives until cleared.
type state struct {
	lastExecutedAt time.Time
	debounceTimer  *time.Timer
	debounceWaiter chan error
	throttleTimer  *time.Timer
	throttled      bool
}

// State is a read-only snapshot of one key's guard state.
type State struct {
	LastExecutedAt  time.Time
	DebouncePending bool
	Throttled       bool
}

// Options configures a Station.
type Options struct {
	// Now returns the current time. Defaults to clock.Now.
	Now func() time.Time
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Station holds guard state for any number of keys. It is safe for
// concurrent use.
type Station struct {
	mu     sync.Mutex
	states map[string]*state
	now    func() time.Time
	logger logging.Logger
}

// New creates an empty Station.
func New(optFns ...func(o *Options)) *Station {
	opts := Options{Now: clock.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	return &Station{
		states: make(map[string]*state),
		now:    opts.Now,
		logger: logging.OrNoOp(opts.Logger),
	}
}

func (s *Station) stateLocked(key string) *state {
	st, ok := s.states[key]
	if !ok {
		st = &state{}
		s.states[key] = st
	}
	return st
}

// Debounce blocks until delay elapses with no newer Debounce call for key.
// It returns nil for the call that survives the quiet period,
// ErrDebounceSuperseded for every call replaced by a newer one,
// ErrGuardCleared if the key is cleared while waiting and ctx.Err() when the
// context ends first. A cancelled waiter disarms its timer.
func (s *Station) Debounce(ctx context.Context, key string, delay time.Duration) error {
	waiter := make(chan error, 1)

	s.mu.Lock()
	st := s.stateLocked(key)
	if st.debounceTimer != nil {
		st.debounceTimer.Stop()
		st.debounceWaiter <- ErrDebounceSuperseded
		s.logger.Trace("Debounce superseded", "key", key)
	}
	st.debounceWaiter = waiter
	st.debounceTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if st.debounceWaiter != waiter {
			return
		}
		st.lastExecutedAt = s.now()
		st.debounceTimer = nil
		st.debounceWaiter = nil
		waiter <- nil
	})
	s.mu.Unlock()

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
	}

	s.mu.Lock()
	if st.debounceWaiter == waiter {
		st.debounceTimer.Stop()
		st.debounceTimer = nil
		st.debounceWaiter = nil
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Unlock()

	// The waiter was resolved concurrently with cancellation.
	select {
	case err := <-waiter:
		return err
	default:
		return ctx.Err()
	}
}

// Throttle decides synchronously whether a call for key may proceed. A call
// is allowed when at least window has passed since the last allowed call
// (or debounce fire) for key. A denied call arms a single cool-down timer
// for the rest of the window; further denied calls during the cool-down do
// not arm more timers.
func (s *Station) Throttle(key string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := s.stateLocked(key)

	elapsed := now.Sub(st.lastExecutedAt)
	if st.lastExecutedAt.IsZero() || elapsed >= window {
		st.lastExecutedAt = now
		if st.throttleTimer != nil {
			st.throttleTimer.Stop()
			st.throttleTimer = nil
		}
		st.throttled = false
		return true
	}

	if st.throttled {
		return false
	}

	st.throttled = true
	st.throttleTimer = time.AfterFunc(window-elapsed, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		st.throttled = false
		st.throttleTimer = nil
	})
	s.logger.Trace("Throttle cool-down started", "key", key, "remaining", window-elapsed)
	return false
}

// State returns a snapshot of key's guard state.
func (s *Station) State(key string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		return State{}, false
	}
	return State{
		LastExecutedAt:  st.lastExecutedAt,
		DebouncePending: st.debounceWaiter != nil,
		Throttled:       st.throttled,
	}, true
}

// Keys returns every key with guard state, sorted.
func (s *Station) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.states))
	for k := range s.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClearGuards cancels outstanding timers for key and drops its state.
func (s *Station) ClearGuards(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[key]; ok {
		s.releaseLocked(st)
		delete(s.states, key)
	}
}

// ClearAll cancels every outstanding timer and drops all state.
func (s *Station) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.states {
		s.releaseLocked(st)
	}
	s.states = make(map[string]*state)
}

func (s *Station) releaseLocked(st *state) {
	if st.debounceTimer != nil {
		st.debounceTimer.Stop()
		st.debounceTimer = nil
	}
	if st.debounceWaiter != nil {
		st.debounceWaiter <- ErrGuardCleared
		st.debounceWaiter = nil
	}
	if st.throttleTimer != nil {
		st.throttleTimer.Stop()
		st.throttleTimer = nil
	}
	st.throttled = false
}
