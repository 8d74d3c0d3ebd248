// Scan sampling for the alignd optimizer
//
// The sampler drives the positioner through a precomputed sequence of
// target positions, one point per scheduling tick. A busy positioner
// defers (never skips) the current point; the only blocking wait is
// the short settle delay between the move and the signal read.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scan

import (
	"time"

	"alignd/pkg/axes"
	"alignd/pkg/errors"
	"alignd/pkg/log"
	"alignd/pkg/motion"
	"alignd/pkg/pool"
)

// StepResult is the outcome of one sampling tick.
type StepResult int

const (
	// StepBusy means the positioner was still moving; no state changed.
	StepBusy StepResult = iota

	// StepAdvanced means one sample was acquired and the cursor moved.
	StepAdvanced

	// StepDone means the final sample has been acquired.
	StepDone
)

func (r StepResult) String() string {
	switch r {
	case StepBusy:
		return "busy"
	case StepAdvanced:
		return "advanced"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Sample is one acquired data point: the achieved position vector (in
// selection order) and the signal value read there.
type Sample struct {
	Position []float64
	Value    float64
}

// rig is the shared acquisition state of the raster sampler and the
// gradient stepper.
type rig struct {
	positioner motion.Positioner
	signal     motion.SignalSource
	settle     time.Duration
	sleep      func(time.Duration)
	logger     *log.Logger

	selection axes.Selection
	samples   []Sample
}

// anyBusy reports whether any selected axis is still moving.
func (r *rig) anyBusy() (bool, error) {
	status, err := r.positioner.Status(r.selection)
	if err != nil {
		return false, errors.AcquisitionError("status query", err)
	}
	for _, busy := range status {
		if busy {
			return true, nil
		}
	}
	return false, nil
}

// acquire moves to the target, waits the settle delay, and appends a
// sample holding the achieved position (re-read from the positioner to
// tolerate hardware quantization) and the signal value.
func (r *rig) acquire(target []float64) error {
	req := pool.GetPositionMap()
	defer pool.PutPositionMap(req)
	for i, axis := range r.selection {
		req[axis] = target[i]
	}
	if _, err := r.positioner.MoveAbs(req); err != nil {
		return errors.AcquisitionError("move", err)
	}
	if r.settle > 0 {
		r.sleep(r.settle)
	}
	achieved, err := r.positioner.Pos(r.selection)
	if err != nil {
		return errors.AcquisitionError("position query", err)
	}
	value, err := r.signal.Value()
	if err != nil {
		return errors.AcquisitionError("signal read", err)
	}
	pos := make([]float64, len(r.selection))
	for i, axis := range r.selection {
		pos[i] = achieved[axis]
	}
	r.samples = append(r.samples, Sample{Position: pos, Value: value})
	return nil
}

// Sampler acquires one sample per tick over a fixed point sequence.
type Sampler struct {
	rig
	points [][]float64
	cursor int
}

// NewSampler creates a sampler reading from the given devices with the
// given settle delay.
func NewSampler(p motion.Positioner, sig motion.SignalSource, settle time.Duration, logger *log.Logger) *Sampler {
	return &Sampler{
		rig: rig{
			positioner: p,
			signal:     sig,
			settle:     settle,
			sleep:      time.Sleep,
			logger:     logger,
		},
	}
}

// SetSettle updates the settle delay for subsequent acquisitions.
func (s *Sampler) SetSettle(d time.Duration) {
	s.settle = d
}

// Begin resets the sampler for a new point sequence.
func (s *Sampler) Begin(selection axes.Selection, points [][]float64) {
	s.selection = selection
	s.points = points
	s.cursor = 0
	s.samples = nil
}

// Step performs one sampling tick. It returns StepBusy without side
// effects while any selected axis is moving; otherwise it acquires the
// current point, advances the cursor, and returns StepAdvanced, or
// StepDone once the cursor has passed the final point.
func (s *Sampler) Step() (StepResult, error) {
	if s.cursor >= len(s.points) {
		return StepDone, nil
	}
	busy, err := s.anyBusy()
	if err != nil {
		return StepBusy, err
	}
	if busy {
		s.logger.Debug("positioner busy, deferring point %d", s.cursor)
		return StepBusy, nil
	}
	if err := s.acquire(s.points[s.cursor]); err != nil {
		return StepBusy, err
	}
	s.cursor++
	if s.cursor == len(s.points) {
		return StepDone, nil
	}
	return StepAdvanced, nil
}

// Samples returns the accumulated samples in acquisition order.
func (s *Sampler) Samples() []Sample {
	return s.samples
}

// Progress returns the fraction of points acquired so far.
func (s *Sampler) Progress() float64 {
	if len(s.points) == 0 {
		return 1
	}
	return float64(s.cursor) / float64(len(s.points))
}
