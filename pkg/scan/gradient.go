// Gradient-ascent stepping
//
// A sample-frugal alternative to the raster scan: sample two points,
// estimate the discrete slope per axis, and step uphill. The step rule
// adds the raw slope value to the last achieved position (unit gain,
// no learning rate); this mirrors the instrument's historical behavior
// and is kept as-is even though the units do not strictly balance.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scan

import (
	"time"

	"alignd/pkg/axes"
	"alignd/pkg/log"
	"alignd/pkg/motion"
	"alignd/pkg/pool"
)

// slopeThreshold is the fixed convergence threshold: the run is
// converged once any axis slope drops to or below this value.
const slopeThreshold = 1e-3

// DefaultMaxGradientSteps bounds runaway gradient runs. The step rule
// cannot detect divergence or oscillation, so the stepper stops after
// this many samples and reports exhaustion.
const DefaultMaxGradientSteps = 500

// GradientStepper iteratively steps toward higher signal using
// finite-difference slope estimates between consecutive samples.
type GradientStepper struct {
	rig
	points    [][]float64
	cursor    int
	maxSteps  int
	converged bool
	exhausted bool
}

// NewGradientStepper creates a stepper reading from the given devices.
// maxSteps <= 0 selects DefaultMaxGradientSteps.
func NewGradientStepper(p motion.Positioner, sig motion.SignalSource, settle time.Duration, maxSteps int, logger *log.Logger) *GradientStepper {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxGradientSteps
	}
	return &GradientStepper{
		rig: rig{
			positioner: p,
			signal:     sig,
			settle:     settle,
			sleep:      time.Sleep,
			logger:     logger,
		},
		maxSteps: maxSteps,
	}
}

// SetSettle updates the settle delay for subsequent acquisitions.
func (g *GradientStepper) SetSettle(d time.Duration) {
	g.settle = d
}

// Begin queues the two initial sample points: the start position and
// the start shifted by one scan-step increment along every selected
// axis simultaneously.
func (g *GradientStepper) Begin(selection axes.Selection, start, offsets []float64) {
	g.selection = selection
	g.samples = nil
	g.cursor = 0
	g.converged = false
	g.exhausted = false

	first := make([]float64, len(start))
	second := make([]float64, len(start))
	copy(first, start)
	for i := range start {
		second[i] = start[i] + offsets[i]
	}
	g.points = [][]float64{first, second}
}

// Step performs one tick: acquire the current point like the raster
// sampler, then once two samples exist estimate the per-axis slope
// between the last two samples. While every slope exceeds the fixed
// threshold a new target is enqueued at last position plus slope;
// otherwise the run is converged.
func (g *GradientStepper) Step() (StepResult, error) {
	if g.converged || g.cursor >= len(g.points) {
		return StepDone, nil
	}
	busy, err := g.anyBusy()
	if err != nil {
		return StepBusy, err
	}
	if busy {
		g.logger.Debug("positioner busy, deferring gradient step %d", g.cursor)
		return StepBusy, nil
	}
	if err := g.acquire(g.points[g.cursor]); err != nil {
		return StepBusy, err
	}
	g.cursor++

	if len(g.samples) < 2 {
		return StepAdvanced, nil
	}
	if len(g.samples) >= g.maxSteps {
		g.logger.Warn("gradient run exhausted after %d samples without converging", len(g.samples))
		g.converged = true
		g.exhausted = true
		return StepDone, nil
	}

	last := g.samples[len(g.samples)-1]
	prev := g.samples[len(g.samples)-2]
	slopes := pool.GetFloat64Slice(len(g.selection))
	defer pool.PutFloat64Slice(slopes)
	allAbove := true
	for i := range g.selection {
		dx := last.Position[i] - prev.Position[i]
		if dx == 0 {
			// Quantized to the same position: treat as flat.
			slopes[i] = 0
		} else {
			slopes[i] = (last.Value - prev.Value) / dx
		}
		if slopes[i] <= slopeThreshold {
			allAbove = false
		}
	}

	if !allAbove {
		g.converged = true
		return StepDone, nil
	}

	next := make([]float64, len(g.selection))
	for i := range g.selection {
		next[i] = last.Position[i] + slopes[i]
	}
	g.points = append(g.points, next)
	return StepAdvanced, nil
}

// Samples returns the accumulated samples in acquisition order.
func (g *GradientStepper) Samples() []Sample {
	return g.samples
}

// Converged reports whether the stepper has stopped.
func (g *GradientStepper) Converged() bool {
	return g.converged
}

// Exhausted reports whether the stepper stopped on the step budget
// rather than on the slope criterion.
func (g *GradientStepper) Exhausted() bool {
	return g.exhausted
}

// Final returns the last achieved position, or nil before any sample.
func (g *GradientStepper) Final() []float64 {
	if len(g.samples) == 0 {
		return nil
	}
	return g.samples[len(g.samples)-1].Position
}

// Progress returns the fraction of the step budget consumed.
func (g *GradientStepper) Progress() float64 {
	if g.converged {
		return 1
	}
	return float64(len(g.samples)) / float64(g.maxSteps)
}
