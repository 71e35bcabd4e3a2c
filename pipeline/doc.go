// Package pipeline runs a handler snapshot under one of three execution
// modes and reports a terminal outcome.
//
//   - Sequential: strict priority order with abort, payload mutation and
//     priority jumps observed between handlers.
//   - Parallel: every eligible handler runs concurrently; the run waits for
//     all of them and reports the first error.
//   - Race: every eligible handler runs concurrently; the first to settle
//     decides the outcome.
//
// Cancellation is cooperative in every mode. Abort stops the executor from
// scheduling further work but never preempts a handler that is already
// running: losers in race mode and siblings of an aborting handler in
// parallel mode run to completion and their results are discarded. The
// context passed to Run is forwarded to handlers, so handlers that honor it
// can be stopped by the caller.
//
// Handler errors are returned exactly as the handler produced them. Panics
// are recovered and reported as errors wrapping core.ErrHandlerPanic.
package pipeline
