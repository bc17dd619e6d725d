package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclegc/pkg/memory"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "dot", cfg.Render.Format)
	assert.Empty(t, cfg.CollectorOptions())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cyclegc.yaml", `
log:
  level: debug
collector:
  name: arena
  panicOnViolation: true
render:
  format: svg
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, cfg.LogLevel())
	assert.Equal(t, "arena", cfg.Collector.Name)
	assert.True(t, cfg.Collector.PanicOnViolation)
	assert.Equal(t, "svg", cfg.Render.Format)
	assert.True(t, cfg.Metrics.Enabled, "unset keys keep their defaults")
	assert.Len(t, cfg.CollectorOptions(), 2)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "cyclegc.toml", `
[log]
level = "warn"

[metrics]
enabled = false
textfile = "/tmp/cyclegc.prom"

[render]
show_reclaimed = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, log.WarnLevel, cfg.LogLevel())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/tmp/cyclegc.prom", cfg.Metrics.Textfile)
	assert.False(t, cfg.Render.ShowReclaimed)
	assert.Equal(t, "dot", cfg.Render.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CYCLEGC_LOG_LEVEL", "error")
	t.Setenv("CYCLEGC_COLLECTOR_NAME", "from-env")
	t.Setenv("CYCLEGC_METRICS_TEXTFILE", "out.prom")
	t.Setenv("CYCLEGC_PANIC_ON_VIOLATION", "true")

	path := writeFile(t, "cyclegc.yml", "collector:\n  name: from-file\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, log.ErrorLevel, cfg.LogLevel())
	assert.Equal(t, "from-env", cfg.Collector.Name)
	assert.Equal(t, "out.prom", cfg.Metrics.Textfile)
	assert.True(t, cfg.Collector.PanicOnViolation)

	c := memory.New(cfg.CollectorOptions()...)
	assert.Equal(t, "from-env", c.Name())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Render, cfg.Render)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown extension", "cyclegc.json", "{}"},
		{"bad yaml", "bad.yaml", "log: [unterminated"},
		{"bad toml", "bad.toml", "[log\nlevel ="},
		{"bad level", "level.yaml", "log:\n  level: loud\n"},
		{"bad format", "format.toml", "[render]\nformat = \"png\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadBadEnvBool(t *testing.T) {
	t.Setenv("CYCLEGC_METRICS_ENABLED", "sometimes")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLEGC_METRICS_ENABLED")

	// Overrides are applied in a fixed order, so the first bad one wins.
	t.Setenv("CYCLEGC_PANIC_ON_VIOLATION", "often")
	for range 20 {
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CYCLEGC_PANIC_ON_VIOLATION")
	}
}
