package core

import (
	"fmt"
	"strings"
)

// ExecutionMode governs how handlers within one dispatch are scheduled.
type ExecutionMode string

const (
	// ModeSequential runs handlers one after another in priority order.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel runs all eligible handlers concurrently and waits for all.
	ModeParallel ExecutionMode = "parallel"
	// ModeRace runs all eligible handlers concurrently; the first to settle wins.
	ModeRace ExecutionMode = "race"
)

// Valid reports whether m is one of the known modes.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeRace:
		return true
	}
	return false
}

func (m ExecutionMode) String() string { return string(m) }

// ParseExecutionMode converts s into an ExecutionMode. Matching is
// case-insensitive; anything else yields ErrUnknownExecutionMode.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	m := ExecutionMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownExecutionMode, s)
	}
	return m, nil
}

// UnmarshalText lets modes be decoded from config files.
func (m *ExecutionMode) UnmarshalText(text []byte) error {
	parsed, err := ParseExecutionMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
