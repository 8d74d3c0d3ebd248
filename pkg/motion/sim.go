// Simulated positioner and signal source
//
// Used by the test suite and by "alignd once --sim" to exercise the
// full optimization path without instrument hardware.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimPositioner is an in-memory positioner. Moves complete after a
// configurable busy duration and achieved positions are quantized to
// the axis step, mirroring real stage behavior.
type SimPositioner struct {
	mu          sync.Mutex
	constraints map[string]Constraint
	positions   map[string]float64
	busyUntil   map[string]time.Time
	moveTime    time.Duration
	now         func() time.Time

	// Error injection for tests
	failNextMove   error
	failNextStatus error
}

// NewSimPositioner creates a simulated positioner with the given axes.
// Initial positions are the constraint minima.
func NewSimPositioner(constraints map[string]Constraint) *SimPositioner {
	positions := make(map[string]float64, len(constraints))
	for axis, c := range constraints {
		positions[axis] = c.Min
	}
	return &SimPositioner{
		constraints: constraints,
		positions:   positions,
		busyUntil:   make(map[string]time.Time),
		now:         time.Now,
	}
}

// SetMoveTime sets how long each axis reports busy after a move.
func (p *SimPositioner) SetMoveTime(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moveTime = d
}

// SetClock overrides the time source (for tests).
func (p *SimPositioner) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// FailNextMove makes the next MoveAbs return err.
func (p *SimPositioner) FailNextMove(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNextMove = err
}

// FailNextStatus makes the next Status return err.
func (p *SimPositioner) FailNextStatus(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNextStatus = err
}

// Constraints implements Positioner.
func (p *SimPositioner) Constraints() (map[string]Constraint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Constraint, len(p.constraints))
	for axis, c := range p.constraints {
		out[axis] = c
	}
	return out, nil
}

// Pos implements Positioner.
func (p *SimPositioner) Pos(axes []string) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(axes))
	for _, axis := range axes {
		v, ok := p.positions[axis]
		if !ok {
			return nil, fmt.Errorf("sim: unknown axis '%s'", axis)
		}
		out[axis] = v
	}
	return out, nil
}

// MoveAbs implements Positioner. Targets are clamped to the hardware
// limits and quantized to the axis step.
func (p *SimPositioner) MoveAbs(target map[string]float64) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNextMove != nil {
		err := p.failNextMove
		p.failNextMove = nil
		return nil, err
	}
	achieved := make(map[string]float64, len(target))
	until := p.now().Add(p.moveTime)
	for axis, v := range target {
		c, ok := p.constraints[axis]
		if !ok {
			return nil, fmt.Errorf("sim: unknown axis '%s'", axis)
		}
		if v < c.Min {
			v = c.Min
		}
		if v > c.Max {
			v = c.Max
		}
		if c.Step > 0 {
			v = c.Min + math.Round((v-c.Min)/c.Step)*c.Step
			if v > c.Max {
				v = c.Max
			}
		}
		p.positions[axis] = v
		p.busyUntil[axis] = until
		achieved[axis] = v
	}
	return achieved, nil
}

// Status implements Positioner.
func (p *SimPositioner) Status(axes []string) (map[string]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNextStatus != nil {
		err := p.failNextStatus
		p.failNextStatus = nil
		return nil, err
	}
	now := p.now()
	out := make(map[string]bool, len(axes))
	for _, axis := range axes {
		if _, ok := p.constraints[axis]; !ok {
			return nil, fmt.Errorf("sim: unknown axis '%s'", axis)
		}
		out[axis] = now.Before(p.busyUntil[axis])
	}
	return out, nil
}

// Abort implements Positioner. All axes report idle immediately.
func (p *SimPositioner) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busyUntil = make(map[string]time.Time)
	return nil
}

// Calibrate implements Positioner. The simulated stage homes each
// axis to its minimum.
func (p *SimPositioner) Calibrate(axes []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, axis := range axes {
		c, ok := p.constraints[axis]
		if !ok {
			return fmt.Errorf("sim: unknown axis '%s'", axis)
		}
		p.positions[axis] = c.Min
	}
	return nil
}

// GaussianSignal is a simulated signal source producing an additive
// background plus a multiplicative Gaussian peak over the positioner's
// current position.
type GaussianSignal struct {
	Positioner *SimPositioner
	Amplitude  float64
	Background float64
	Center     map[string]float64
	Width      map[string]float64

	// Noise is the standard deviation of optional additive noise.
	Noise float64
	Rand  *rand.Rand

	failNext error
	mu       sync.Mutex
}

// FailNext makes the next Value return err.
func (g *GaussianSignal) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

// Value implements SignalSource.
func (g *GaussianSignal) Value() (float64, error) {
	g.mu.Lock()
	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		g.mu.Unlock()
		return 0, err
	}
	g.mu.Unlock()

	axes := make([]string, 0, len(g.Center))
	for axis := range g.Center {
		axes = append(axes, axis)
	}
	pos, err := g.Positioner.Pos(axes)
	if err != nil {
		return 0, err
	}
	v := g.Amplitude
	for axis, center := range g.Center {
		w := g.Width[axis]
		if w == 0 {
			w = 1
		}
		d := pos[axis] - center
		v *= math.Exp(-d * d / (2 * w * w))
	}
	v += g.Background
	if g.Noise > 0 && g.Rand != nil {
		v += g.Rand.NormFloat64() * g.Noise
	}
	return v, nil
}
