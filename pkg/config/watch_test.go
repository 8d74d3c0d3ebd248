package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignd/pkg/log"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetWriter(io.Discard)
	return l
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alignd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	var mu sync.Mutex
	var got *Config
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		got = cfg
		mu.Unlock()
	}, quietLogger())
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Log.Level == "debug"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherKeepsPreviousOnBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alignd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	var mu sync.Mutex
	calls := 0
	w, err := NewWatcher(path, func(*Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, quietLogger())
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: bogus\n"), 0o644))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}
