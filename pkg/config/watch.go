// Configuration hot reload
//
// The watcher monitors the config file and re-runs Load when it
// changes. Editors replace files rather than rewriting them in place,
// so the watch is placed on the parent directory and filtered by name,
// and rapid event bursts are debounced. A reload that fails to parse
// or validate is reported and the previous configuration stays active.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"alignd/pkg/log"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads the configuration file on change.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *log.Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher creates a watcher for the config file at path. onChange
// receives every successfully reloaded configuration.
func NewWatcher(path string, onChange func(*Config), logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		debounce: defaultDebounce,
	}, nil
}

// SetDebounce adjusts the quiet period required after the last file
// event before a reload is attempted.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run blocks processing file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watch error")
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("config reload failed, keeping previous configuration")
		return
	}
	w.logger.Info("configuration reloaded from %s", w.path)
	w.onChange(cfg)
}
