// Axis range metadata for the alignd optimizer
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axes

import (
	"math"
	"sort"
	"sync"

	"alignd/pkg/errors"
	"alignd/pkg/log"
	"alignd/pkg/motion"
)

// Range is the validated scan range of one axis. Invariants: Min <= Max,
// Step > 0, and both bounds lie within the hardware limits.
type Range struct {
	Axis string
	Min  float64
	Max  float64
	Step float64
}

// Len returns the number of scan points in the range. Both endpoints
// are included, so range(0, 10, 1) has 11 points.
func (r Range) Len() int {
	if r.Step <= 0 {
		return 1
	}
	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	if n < 1 {
		n = 1
	}
	return n
}

// Points returns the scan positions of the range in ascending order.
func (r Range) Points() []float64 {
	n := r.Len()
	pts := make([]float64, n)
	for i := 0; i < n; i++ {
		v := r.Min + float64(i)*r.Step
		if v > r.Max {
			v = r.Max
		}
		pts[i] = v
	}
	return pts
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Selection is an ordered set of axis identifiers. The order fixes the
// dimension order of every position vector for one optimization run.
type Selection []string

// Index returns the position of axis in the selection, or -1.
func (s Selection) Index(axis string) int {
	for i, a := range s {
		if a == axis {
			return i
		}
	}
	return -1
}

// Space holds the per-axis scan ranges, derived from the positioner's
// hardware constraints and mutable by explicit user override.
type Space struct {
	mu          sync.Mutex
	constraints map[string]motion.Constraint
	ranges      map[string]Range
	logger      *log.Logger
}

// Build queries the positioner constraints and derives the initial
// scan ranges (full hardware range at hardware step).
func Build(p motion.Positioner, logger *log.Logger) (*Space, error) {
	constraints, err := p.Constraints()
	if err != nil {
		return nil, errors.AcquisitionError("constraints query", err)
	}
	return NewSpace(constraints, logger), nil
}

// NewSpace creates a Space from known constraints.
func NewSpace(constraints map[string]motion.Constraint, logger *log.Logger) *Space {
	ranges := make(map[string]Range, len(constraints))
	for axis, c := range constraints {
		ranges[axis] = Range{Axis: axis, Min: c.Min, Max: c.Max, Step: c.Step}
	}
	return &Space{
		constraints: constraints,
		ranges:      ranges,
		logger:      logger,
	}
}

// Axes returns the known axis identifiers in sorted order.
func (s *Space) Axes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.constraints))
	for axis := range s.constraints {
		out = append(out, axis)
	}
	sort.Strings(out)
	return out
}

// Range returns the configured range of one axis.
func (s *Space) Range(axis string) (Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ranges[axis]
	if !ok {
		return Range{}, errors.InvalidAxisError(axis)
	}
	return r, nil
}

// Ranges returns a copy of all configured ranges.
func (s *Space) Ranges() map[string]Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Range, len(s.ranges))
	for axis, r := range s.ranges {
		out[axis] = r
	}
	return out
}

// SetRange overrides the scan range of one axis. Out-of-bound values
// are clamped to the hardware limits with a logged warning; a missing,
// zero, or oversized step is replaced by the hardware step. Only an
// unknown axis is an error.
func (s *Space) SetRange(axis string, min, max, step float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.constraints[axis]
	if !ok {
		return errors.InvalidAxisError(axis)
	}

	if min < c.Min || min > c.Max {
		s.logger.WithField("axis", axis).Warn(
			"range minimum %.6g outside hardware limits [%.6g, %.6g], using hardware minimum", min, c.Min, c.Max)
		min = c.Min
	}
	if max > c.Max || max < c.Min {
		s.logger.WithField("axis", axis).Warn(
			"range maximum %.6g outside hardware limits [%.6g, %.6g], using hardware maximum", max, c.Min, c.Max)
		max = c.Max
	}
	if min > max {
		s.logger.WithField("axis", axis).Warn(
			"range minimum %.6g above maximum %.6g, swapping", min, max)
		min, max = max, min
	}
	if step <= 0 || step < c.Step || step > max-min {
		if max > min {
			s.logger.WithField("axis", axis).Warn(
				"range step %.6g invalid for span [%.6g, %.6g], using hardware step %.6g", step, min, max, c.Step)
		}
		step = c.Step
	}
	if step <= 0 {
		// Hardware reported no step resolution; collapse to endpoints.
		step = max - min
	}
	if step <= 0 {
		step = 1
	}

	s.ranges[axis] = Range{Axis: axis, Min: min, Max: max, Step: step}
	return nil
}

// Select returns an ordered selection of the given axes, failing if
// any identifier is unknown.
func (s *Space) Select(ids []string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel := make(Selection, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.constraints[id]; !ok {
			return nil, errors.InvalidAxisError(id)
		}
		sel = append(sel, id)
	}
	return sel, nil
}

// Constraint returns the hardware limits of one axis.
func (s *Space) Constraint(axis string) (motion.Constraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.constraints[axis]
	if !ok {
		return motion.Constraint{}, errors.InvalidAxisError(axis)
	}
	return c, nil
}
