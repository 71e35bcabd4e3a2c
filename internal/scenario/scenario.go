// Package scenario describes scripted handler pipelines in YAML. A scenario
// registers handlers built from a list of steps, runs a sequence of
// dispatches against an ActionRegister and checks each outcome.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/actionregister/config"
	"github.com/hupe1980/actionregister/core"
)

// Step operation names.
const (
	OpSet      = "set"
	OpAdd      = "add"
	OpMultiply = "multiply"
	OpNext     = "next"
	OpAbort    = "abort"
	OpFail     = "fail"
	OpSleep    = "sleep"
	OpJump     = "jump"
	OpResult   = "result"
	OpRecord   = "record"
)

var knownOps = map[string]bool{
	OpSet: true, OpAdd: true, OpMultiply: true, OpNext: true, OpAbort: true,
	OpFail: true, OpSleep: true, OpJump: true, OpResult: true, OpRecord: true,
}

// Scenario is the root of a scenario file.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description,omitempty"`

	// Config overrides register settings. Execution modes set here apply
	// before any dispatch.
	Config *config.Config `yaml:"config,omitempty"`

	// Handlers are registered in file order.
	Handlers []Handler `yaml:"handlers"`

	// Dispatches run in file order.
	Dispatches []Dispatch `yaml:"dispatches"`
}

// Handler is one scripted handler.
type Handler struct {
	Action     string        `yaml:"action"`
	ID         string        `yaml:"id,omitempty"`
	Priority   int           `yaml:"priority,omitempty"`
	Blocking   bool          `yaml:"blocking,omitempty"`
	Once       bool          `yaml:"once,omitempty"`
	Middleware bool          `yaml:"middleware,omitempty"`
	Disabled   bool          `yaml:"disabled,omitempty"`
	Debounce   time.Duration `yaml:"debounce,omitempty"`
	Throttle   time.Duration `yaml:"throttle,omitempty"`

	// Accepts restricts the handler to payloads of this kind: number,
	// string, bool or map. Empty accepts every payload.
	Accepts string `yaml:"accepts,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one operation a scripted handler performs.
type Step struct {
	Op       string        `yaml:"op"`
	Value    any           `yaml:"value,omitempty"`
	Reason   string        `yaml:"reason,omitempty"`
	Message  string        `yaml:"message,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Priority int           `yaml:"priority,omitempty"`
}

// Dispatch is one dispatch of a scenario.
type Dispatch struct {
	Action  string `yaml:"action"`
	Payload any    `yaml:"payload,omitempty"`

	// Expect is the expected outcome: completed, aborted or failed.
	// Empty skips the check.
	Expect string `yaml:"expect,omitempty"`

	// ExpectPayload, when set, is compared to the final payload.
	ExpectPayload any `yaml:"expect_payload,omitempty"`

	// Repeat runs the dispatch this many times. Defaults to 1.
	Repeat int `yaml:"repeat,omitempty"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks required fields and step operations.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Dispatches) == 0 {
		errs = append(errs, errors.New("dispatches list is required and must be non-empty"))
	}
	if s.Config != nil {
		cfg := *s.Config
		if cfg.Name == "" {
			cfg.Name = s.Name
		}
		if cfg.DefaultExecutionMode == "" {
			cfg.DefaultExecutionMode = core.ModeSequential
		}
		if err := cfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}

	for i, h := range s.Handlers {
		if h.Action == "" {
			errs = append(errs, fmt.Errorf("handlers[%d]: action is required", i))
		}
		switch h.Accepts {
		case "", "number", "string", "bool", "map":
		default:
			errs = append(errs, fmt.Errorf("handlers[%d]: unknown accepts %q", i, h.Accepts))
		}
		for j, st := range h.Steps {
			if !knownOps[st.Op] {
				errs = append(errs, fmt.Errorf("handlers[%d].steps[%d]: unknown op %q", i, j, st.Op))
				continue
			}
			if (st.Op == OpAdd || st.Op == OpMultiply) && !isNumber(st.Value) {
				errs = append(errs, fmt.Errorf("handlers[%d].steps[%d]: %s needs a numeric value", i, j, st.Op))
			}
		}
	}

	for i, d := range s.Dispatches {
		if d.Action == "" {
			errs = append(errs, fmt.Errorf("dispatches[%d]: action is required", i))
		}
		switch d.Expect {
		case "", "completed", "aborted", "failed":
		default:
			errs = append(errs, fmt.Errorf("dispatches[%d]: unknown expect %q", i, d.Expect))
		}
		if d.Repeat < 0 {
			errs = append(errs, fmt.Errorf("dispatches[%d]: repeat must not be negative", i))
		}
	}
	return errors.Join(errs...)
}
