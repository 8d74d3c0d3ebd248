// Named alignment snapshots
//
// A snapshot maps axis identifiers to saved positions. The collection
// is keyed by name; saving under an existing name overwrites it.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package align

import (
	"sort"
	"sync"

	"alignd/pkg/errors"
	"alignd/pkg/log"
)

// Store owns the named alignment snapshots for the process lifetime.
type Store struct {
	mu        sync.Mutex
	snapshots map[string]map[string]float64
	logger    *log.Logger
}

// NewStore creates an empty snapshot store.
func NewStore(logger *log.Logger) *Store {
	return &Store{
		snapshots: make(map[string]map[string]float64),
		logger:    logger,
	}
}

// Save stores a copy of the given positions under name, overwriting
// any existing entry.
func (s *Store) Save(name string, positions map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]float64, len(positions))
	for axis, pos := range positions {
		snap[axis] = pos
	}
	s.snapshots[name] = snap
	s.logger.Info("saved alignment '%s' (%d axes)", name, len(snap))
}

// Recall returns a copy of the snapshot stored under name.
func (s *Store) Recall(name string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[name]
	if !ok {
		return nil, errors.UnknownAlignmentError(name)
	}
	out := make(map[string]float64, len(snap))
	for axis, pos := range snap {
		out[axis] = pos
	}
	return out, nil
}

// Names returns the snapshot names in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.snapshots))
	for name := range s.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a deep copy of the full name to position table.
func (s *Store) All() map[string]map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]float64, len(s.snapshots))
	for name, snap := range s.snapshots {
		cp := make(map[string]float64, len(snap))
		for axis, pos := range snap {
			cp[axis] = pos
		}
		out[name] = cp
	}
	return out
}

// Replace swaps the full snapshot table.
func (s *Store) Replace(snapshots map[string]map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = make(map[string]map[string]float64, len(snapshots))
	for name, snap := range snapshots {
		cp := make(map[string]float64, len(snap))
		for axis, pos := range snap {
			cp[axis] = pos
		}
		s.snapshots[name] = cp
	}
}

// merge adds positions from one imported snapshot column.
func (s *Store) merge(name, axis string, pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[name]
	if !ok {
		snap = make(map[string]float64)
		s.snapshots[name] = snap
	}
	snap[axis] = pos
}
