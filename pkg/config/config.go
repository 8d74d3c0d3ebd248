// Daemon configuration
//
// Configuration is a YAML file merged with environment overrides. The
// file is optional; every field has a working default so the daemon
// can start bare and be driven entirely over HTTP.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"alignd/pkg/errors"
)

// Duration wraps time.Duration so YAML and environment values can be
// written as "250ms" or "1.5s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalText also serves the env override path.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// RangeConfig is a scan range override for one axis.
type RangeConfig struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// LogConfig selects log verbosity and output format.
type LogConfig struct {
	Level  string `yaml:"level" env:"ALIGND_LOG_LEVEL"`
	Format string `yaml:"format" env:"ALIGND_LOG_FORMAT"`
}

// ServerConfig holds the HTTP control surface settings.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"ALIGND_SERVER_ADDR"`
}

// StoreConfig holds snapshot persistence settings. An empty path
// disables persistence and keeps snapshots in memory.
type StoreConfig struct {
	Path string `yaml:"path" env:"ALIGND_STORE_PATH"`
}

// AlignConfig holds optimization settings.
type AlignConfig struct {
	Strategy      string                 `yaml:"strategy" env:"ALIGND_STRATEGY"`
	SettleDelay   Duration               `yaml:"settle_delay" env:"ALIGND_SETTLE_DELAY"`
	TickPeriod    Duration               `yaml:"tick_period" env:"ALIGND_TICK_PERIOD"`
	OptimizedAxes []string               `yaml:"optimized_axes" env:"ALIGND_OPTIMIZED_AXES" envSeparator:","`
	Axes          map[string]RangeConfig `yaml:"axes"`
}

// Config is the full daemon configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Align  AlignConfig  `yaml:"align"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":7125",
		},
		Align: AlignConfig{
			Strategy:   "raster",
			TickPeriod: Duration(50 * time.Millisecond),
		},
	}
}

// Load reads the configuration file at path (skipped when path is
// empty), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("read %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("parse %s", path), err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.ConfigError("environment overrides", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that have a closed set of choices.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown log level '%s'", c.Log.Level), nil)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown log format '%s'", c.Log.Format), nil)
	}
	switch c.Align.Strategy {
	case "raster", "gradient":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown strategy '%s'", c.Align.Strategy), nil)
	}
	if c.Align.TickPeriod <= 0 {
		return errors.ConfigError("tick_period must be positive", nil)
	}
	for axis, r := range c.Align.Axes {
		if r.Step < 0 {
			return errors.ConfigError(fmt.Sprintf("axis '%s': step must not be negative", axis), nil)
		}
	}
	return nil
}
