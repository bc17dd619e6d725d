// Package config provides configuration loading and validation for cyclegc
// tools. Supports YAML and TOML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"cyclegc/pkg/memory"
)

// Config holds all configuration for a collector and the tools around it.
type Config struct {
	Log       LogConfig       `yaml:"log" toml:"log"`
	Collector CollectorConfig `yaml:"collector" toml:"collector"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Render    RenderConfig    `yaml:"render" toml:"render"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type CollectorConfig struct {
	// Name labels log lines and metrics. Empty means a random UUID.
	Name             string `yaml:"name" toml:"name"`
	PanicOnViolation bool   `yaml:"panicOnViolation" toml:"panic_on_violation"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Textfile is written in the node_exporter textfile format after a run.
	Textfile string `yaml:"textfile" toml:"textfile"`
}

type RenderConfig struct {
	// Format is "dot" or "svg".
	Format        string `yaml:"format" toml:"format"`
	ShowReclaimed bool   `yaml:"showReclaimed" toml:"show_reclaimed"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Render: RenderConfig{
			Format:        "dot",
			ShowReclaimed: true,
		},
	}
}

// Load reads path on top of the defaults, choosing the decoder by file
// extension, then applies environment overrides. An empty path yields the
// defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q", ext)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("CYCLEGC_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("CYCLEGC_COLLECTOR_NAME"); ok {
		c.Collector.Name = v
	}
	if v, ok := os.LookupEnv("CYCLEGC_METRICS_TEXTFILE"); ok {
		c.Metrics.Textfile = v
	}
	for _, b := range []struct {
		name string
		dst  *bool
	}{
		{"CYCLEGC_PANIC_ON_VIOLATION", &c.Collector.PanicOnViolation},
		{"CYCLEGC_METRICS_ENABLED", &c.Metrics.Enabled},
	} {
		v, ok := os.LookupEnv(b.name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
		*b.dst = parsed
	}
	return nil
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Render.Format {
	case "dot", "svg":
	default:
		return fmt.Errorf("render.format: unknown format %q (want dot or svg)", c.Render.Format)
	}
	return nil
}

// LogLevel returns the parsed log level. Validate has already rejected
// unknown levels, so the fallback is only reached for hand-built configs.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// CollectorOptions translates the collector section into memory options.
func (c *Config) CollectorOptions() []memory.Option {
	var opts []memory.Option
	if c.Collector.Name != "" {
		opts = append(opts, memory.WithName(c.Collector.Name))
	}
	if c.Collector.PanicOnViolation {
		opts = append(opts, memory.WithPanicOnViolation())
	}
	return opts
}
