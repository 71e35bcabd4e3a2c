package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	actionregister "github.com/hupe1980/actionregister"
	"github.com/hupe1980/actionregister/event"
	"github.com/hupe1980/actionregister/internal/scenario"
	"github.com/hupe1980/actionregister/telemetry"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	Trace bool
}

// EventRecord is the printable form of a lifecycle event.
type EventRecord struct {
	Type       string  `json:"type"`
	Action     string  `json:"action"`
	DispatchID string  `json:"dispatch_id,omitempty"`
	HandlerID  string  `json:"handler_id,omitempty"`
	Priority   int     `json:"priority,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`
	Handlers   int     `json:"handlers,omitempty"`
}

// SimulateResult is the data of a simulate run.
type SimulateResult struct {
	Scenario string            `json:"scenario"`
	Passed   bool              `json:"passed"`
	Events   []EventRecord     `json:"events"`
	Reports  []scenario.Report `json:"reports"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a scripted handler scenario",
		Long: `Register the scripted handlers of a scenario file, run its dispatches
and print the lifecycle event log together with a report per dispatch.

Exits non-zero when a dispatch does not meet its expectations.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "export dispatch spans to stderr")

	return cmd
}

func runSimulate(rootOpts *RootOptions, opts *SimulateOptions, cmd *cobra.Command, path string) error {
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	log := rootOpts.logger(cmd.ErrOrStderr())

	s, err := scenario.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = out.Error(ErrCodeNotFound, fmt.Sprintf("scenario file not found: %s", path), nil)
			return &ExitError{Code: ExitCommandError, Message: ErrCodeNotFound + ": scenario file not found", Err: err}
		}
		_ = out.Error(ErrCodeInvalid, err.Error(), nil)
		return &ExitError{Code: ExitFailure, Message: ErrCodeInvalid + ": invalid scenario", Err: err}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var tp trace.TracerProvider
	if opts.Trace {
		sdkTP, err := telemetry.NewStdoutTracerProvider("actionregister", "simulate", cmd.ErrOrStderr())
		if err != nil {
			return &ExitError{Code: ExitCommandError, Message: "failed to set up tracing", Err: err}
		}
		defer func() { _ = sdkTP.Shutdown(context.Background()) }()
		tp = sdkTP
	}

	r := actionregister.New(func(o *actionregister.Options) {
		if s.Config != nil {
			o.Config = *s.Config
		}
		if o.Config.Name == "" {
			o.Config.Name = s.Name
		}
		o.Logger = log
		o.TracerProvider = tp
	})

	var (
		mu     sync.Mutex
		events []EventRecord
	)
	for _, t := range event.Types {
		r.On(t, func(_ context.Context, ev event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, toRecord(ev))
			return nil
		})
	}

	log.Info("Running scenario", "scenario", s.Name, "handlers", len(s.Handlers), "dispatches", len(s.Dispatches))
	reports, err := s.Run(ctx, r)
	if err != nil {
		_ = out.Error(ErrCodeInvalid, err.Error(), nil)
		return &ExitError{Code: ExitFailure, Message: ErrCodeInvalid + ": scenario run failed", Err: err}
	}

	mu.Lock()
	result := SimulateResult{Scenario: s.Name, Passed: true, Events: events, Reports: reports}
	mu.Unlock()
	for _, rep := range reports {
		if !rep.Passed() {
			result.Passed = false
		}
	}

	if rootOpts.Format == "json" {
		if err := out.Success(result, ""); err != nil {
			return err
		}
	} else if err := out.Success(nil, renderText(result)); err != nil {
		return err
	}

	if !result.Passed {
		return &ExitError{Code: ExitFailure, Message: ErrCodeMismatch + ": scenario expectations not met"}
	}
	return nil
}

func toRecord(ev event.Event) EventRecord {
	rec := EventRecord{
		Type:       string(ev.Type),
		Action:     ev.Action,
		DispatchID: ev.DispatchID,
		HandlerID:  ev.HandlerID,
		Priority:   ev.Priority,
		Reason:     ev.Reason,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	if ev.Metrics != nil {
		rec.DurationMs = ev.Metrics.ExecutionTimeMs()
		rec.Handlers = ev.Metrics.HandlerCount
	}
	return rec
}

func renderText(res SimulateResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n\nEvents:\n", res.Scenario)
	for _, ev := range res.Events {
		fmt.Fprintf(&b, "  %-18s %s", ev.Type, ev.Action)
		if ev.HandlerID != "" {
			fmt.Fprintf(&b, " handler=%s priority=%d", ev.HandlerID, ev.Priority)
		}
		if ev.Reason != "" {
			fmt.Fprintf(&b, " reason=%q", ev.Reason)
		}
		if ev.Error != "" {
			fmt.Fprintf(&b, " error=%q", ev.Error)
		}
		if ev.Type == string(event.ActionComplete) || ev.Type == string(event.ActionAbort) || ev.Type == string(event.ActionError) {
			fmt.Fprintf(&b, " handlers=%d", ev.Handlers)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nDispatches:\n")
	for _, rep := range res.Reports {
		mark := "✓"
		if !rep.Passed() {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s #%d %s -> %s (payload=%v, invoked=%d)\n", mark, rep.Index, rep.Action, rep.Outcome, rep.Payload, rep.Invoked)
		for _, m := range rep.Mismatches {
			fmt.Fprintf(&b, "      %s\n", m)
		}
	}

	if res.Passed {
		b.WriteString("\n✓ All expectations met")
	} else {
		b.WriteString("\n✗ Expectations not met")
	}
	return b.String()
}
