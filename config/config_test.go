package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionregister/core"
	"github.com/hupe1980/actionregister/logging"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, core.ModeSequential, cfg.DefaultExecutionMode)
	assert.Equal(t, logging.LogLevelInfo, cfg.Level())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
name: orders
log_level: warn
log_format: json
default_execution_mode: Parallel
action_execution_modes:
  order:validate: race
  order:ship: sequential
`))
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, logging.LogLevelWarn, cfg.Level())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, core.ModeParallel, cfg.DefaultExecutionMode)
	assert.Equal(t, map[string]core.ExecutionMode{
		"order:validate": core.ModeRace,
		"order:ship":     core.ModeSequential,
	}, cfg.ActionExecutionModes)
}

func TestParse_EmptyYieldsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "nmae: typo\n", "nmae"},
		{"bad mode", "default_execution_mode: broadcast\n", "unknown execution mode"},
		{"bad action mode", "action_execution_modes:\n  a: fifo\n", "unknown execution mode"},
		{"bad level", "log_level: loud\n", "unknown level"},
		{"bad format", "log_format: xml\n", "log_format"},
		{"empty name", "name: \"\"\n", "name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLevel_DebugOverrides(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "error"
	cfg.Debug = true
	assert.Equal(t, logging.LogLevelDebug, cfg.Level())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "register.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
