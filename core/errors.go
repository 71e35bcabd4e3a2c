package core

import "errors"

var (
	// ErrUnknownExecutionMode indicates a mode other than sequential, parallel or race.
	ErrUnknownExecutionMode = errors.New("actionregister: unknown execution mode")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("actionregister: handler panic")
)
