// Package config loads ActionRegister settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/actionregister/core"
	"github.com/hupe1980/actionregister/logging"
)

// Config holds the settings an ActionRegister is constructed from.
type Config struct {
	// Name identifies the register in logs and Info.
	Name string `yaml:"name"`

	// LogLevel is one of trace, debug, info, warn, error, none.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat is json or text.
	LogFormat string `yaml:"log_format,omitempty"`

	// Debug forces the debug log level regardless of LogLevel.
	Debug bool `yaml:"debug,omitempty"`

	// DefaultExecutionMode applies to actions without an override.
	DefaultExecutionMode core.ExecutionMode `yaml:"default_execution_mode,omitempty"`

	// ActionExecutionModes maps action names to per-action modes.
	ActionExecutionModes map[string]core.ExecutionMode `yaml:"action_execution_modes,omitempty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Name:                 "default",
		LogLevel:             "info",
		LogFormat:            "text",
		DefaultExecutionMode: core.ModeSequential,
		ActionExecutionModes: map[string]core.ExecutionMode{},
	}
}

// Parse decodes YAML over Default. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if cfg.ActionExecutionModes == nil {
		cfg.ActionExecutionModes = map[string]core.ExecutionMode{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load reads and parses the config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Validate checks names, levels and modes.
func (c Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log_format %q: must be json or text", c.LogFormat))
	}
	if !c.DefaultExecutionMode.Valid() {
		errs = append(errs, fmt.Errorf("default_execution_mode: %w: %q", core.ErrUnknownExecutionMode, c.DefaultExecutionMode))
	}
	for action, mode := range c.ActionExecutionModes {
		if action == "" {
			errs = append(errs, errors.New("action_execution_modes: empty action name"))
		}
		if !mode.Valid() {
			errs = append(errs, fmt.Errorf("action_execution_modes[%s]: %w: %q", action, core.ErrUnknownExecutionMode, mode))
		}
	}
	return errors.Join(errs...)
}

// Level resolves the effective log level.
func (c Config) Level() logging.LogLevel {
	if c.Debug {
		return logging.LogLevelDebug
	}
	lvl, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LogLevelInfo
	}
	return lvl
}
