package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/actionregister/config"
)

// ValidateSummary is the data of a successful validate run.
type ValidateSummary struct {
	Name                 string            `json:"name"`
	LogLevel             string            `json:"log_level"`
	DefaultExecutionMode string            `json:"default_execution_mode"`
	ActionExecutionModes map[string]string `json:"action_execution_modes,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a register configuration file",
		Long: `Validate a YAML register configuration.

Checks field names, log settings and every execution mode without
constructing a register.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0])
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	log := opts.logger(cmd.ErrOrStderr())

	log.Debug("Validating config", "path", path)
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = out.Error(ErrCodeNotFound, fmt.Sprintf("config file not found: %s", path), nil)
			return &ExitError{Code: ExitCommandError, Message: ErrCodeNotFound + ": config file not found", Err: err}
		}
		_ = out.Error(ErrCodeInvalid, err.Error(), nil)
		return &ExitError{Code: ExitFailure, Message: ErrCodeInvalid + ": invalid config", Err: err}
	}

	summary := ValidateSummary{
		Name:                 cfg.Name,
		LogLevel:             cfg.Level().String(),
		DefaultExecutionMode: cfg.DefaultExecutionMode.String(),
		ActionExecutionModes: make(map[string]string, len(cfg.ActionExecutionModes)),
	}
	actions := make([]string, 0, len(cfg.ActionExecutionModes))
	for action, mode := range cfg.ActionExecutionModes {
		summary.ActionExecutionModes[action] = mode.String()
		actions = append(actions, action)
	}
	sort.Strings(actions)

	var b strings.Builder
	fmt.Fprintf(&b, "✓ Config valid: %s (default mode %s, log level %s)", summary.Name, summary.DefaultExecutionMode, summary.LogLevel)
	for _, action := range actions {
		fmt.Fprintf(&b, "\n  %s: %s", action, summary.ActionExecutionModes[action])
	}
	return out.Success(summary, b.String())
}
