package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignd/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alignd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":7125", cfg.Server.Addr)
	assert.Equal(t, "raster", cfg.Align.Strategy)
	assert.Equal(t, 50*time.Millisecond, cfg.Align.TickPeriod.Std())
	assert.Empty(t, cfg.Store.Path)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
server:
  addr: ":9000"
store:
  path: /var/lib/alignd/alignments.db
align:
  strategy: gradient
  settle_delay: 250ms
  tick_period: 10ms
  optimized_axes: [x, y]
  axes:
    x: {min: 0, max: 10, step: 1}
    y: {min: -5, max: 5, step: 0.5}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/var/lib/alignd/alignments.db", cfg.Store.Path)
	assert.Equal(t, "gradient", cfg.Align.Strategy)
	assert.Equal(t, 250*time.Millisecond, cfg.Align.SettleDelay.Std())
	assert.Equal(t, 10*time.Millisecond, cfg.Align.TickPeriod.Std())
	assert.Equal(t, []string{"x", "y"}, cfg.Align.OptimizedAxes)
	assert.Equal(t, RangeConfig{Min: -5, Max: 5, Step: 0.5}, cfg.Align.Axes["y"])
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("ALIGND_LOG_LEVEL", "warn")
	t.Setenv("ALIGND_SERVER_ADDR", ":8080")
	t.Setenv("ALIGND_SETTLE_DELAY", "1s")
	t.Setenv("ALIGND_OPTIMIZED_AXES", "x,z")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Align.SettleDelay.Std())
	assert.Equal(t, []string{"x", "z"}, cfg.Align.OptimizedAxes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "log: [not a mapping\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"strategy", func(c *Config) { c.Align.Strategy = "annealing" }},
		{"tick period", func(c *Config) { c.Align.TickPeriod = 0 }},
		{"negative step", func(c *Config) {
			c.Align.Axes = map[string]RangeConfig{"x": {Min: 0, Max: 1, Step: -1}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfig))
		})
	}
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1.5s")))
	assert.Equal(t, 1500*time.Millisecond, d.Std())
	assert.Equal(t, "1.5s", d.String())
}
