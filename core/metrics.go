package core

import "time"

// Metrics summarizes one dispatch. It is attached to the terminal lifecycle
// event and never retained by the register.
type Metrics struct {
	DispatchID    string
	ActionName    string
	Mode          ExecutionMode
	ExecutionTime time.Duration
	HandlerCount  int
	InvokedCount  int
	Success       bool
	Error         error
	Timestamp     time.Time
}

// ExecutionTimeMs returns ExecutionTime in fractional milliseconds.
func (m Metrics) ExecutionTimeMs() float64 {
	return float64(m.ExecutionTime) / float64(time.Millisecond)
}
