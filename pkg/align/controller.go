// Alignment optimization state machine
//
// The controller owns one optimization run at a time. It is driven by
// repeated Tick() calls from the cooperative scheduler:
//
//	Idle -> Scanning -> Fitting  -> Committing -> Idle   (raster)
//	Idle -> Stepping -> Converged -> Committing -> Idle  (gradient)
//
// Scanning and Stepping may return to Idle directly on cancellation.
// Run-fatal errors terminate the run, leave the controller Idle, and
// stay visible through Status() until the next run starts.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package align

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alignd/pkg/axes"
	"alignd/pkg/errors"
	"alignd/pkg/fit"
	"alignd/pkg/log"
	"alignd/pkg/metrics"
	"alignd/pkg/motion"
	"alignd/pkg/scan"
	"alignd/pkg/sched"
)

// Strategy selects the optimization algorithm for a run.
type Strategy int

const (
	// Raster scans the full Cartesian grid of the selected ranges and
	// fits a Gaussian model to the samples.
	Raster Strategy = iota

	// Gradient samples along the axes and steps uphill.
	Gradient
)

func (s Strategy) String() string {
	switch s {
	case Raster:
		return "raster"
	case Gradient:
		return "gradient"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "raster":
		return Raster, nil
	case "gradient":
		return Gradient, nil
	default:
		return Raster, fmt.Errorf("unknown optimization strategy '%s'", s)
	}
}

// State is the controller's state machine position.
type State int

const (
	Idle State = iota
	Scanning
	Stepping
	Converged
	Fitting
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Stepping:
		return "stepping"
	case Converged:
		return "converged"
	case Fitting:
		return "fitting"
	case Committing:
		return "committing"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name in status payloads.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, st := range []State{Idle, Scanning, Stepping, Converged, Fitting, Committing} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown controller state '%s'", name)
}

// Status is the controller state reported to the caller.
type Status struct {
	State     State   `json:"state"`
	Strategy  string  `json:"strategy"`
	RunID     string  `json:"run_id,omitempty"`
	Progress  float64 `json:"progress"`
	LastError string  `json:"last_error,omitempty"`
}

// Settings is the controller configuration surface.
type Settings struct {
	// AxisRanges overrides scan ranges (validated and clamped by the
	// axis space).
	AxisRanges map[string]axes.Range

	// OptimizedAxes selects which axes one run moves; empty selects
	// all known axes.
	OptimizedAxes []string

	// Strategy for subsequent runs; nil keeps the current strategy so
	// partial settings updates do not reset it.
	Strategy *Strategy

	// SettleDelay is the wait between each move and the signal read.
	SettleDelay time.Duration
}

// maxSettleDelay bounds the per-point settle wait so a misconfigured
// delay cannot stall the scheduler.
const maxSettleDelay = 5 * time.Second

// run is the transient state of one in-progress optimization. It is
// created at Start and discarded (not reset) when the controller
// returns to Idle.
type run struct {
	id        string
	strategy  Strategy
	selection axes.Selection
	preRun    map[string]float64
	target    []float64
	started   time.Time
}

// Controller drives axis selection, strategy execution, and the final
// commit move.
type Controller struct {
	mu sync.Mutex

	positioner motion.Positioner
	signal     motion.SignalSource
	space      *axes.Space
	store      *Store
	db         *DB

	sampler *scan.Sampler
	stepper *scan.GradientStepper
	fitter  *fit.Fitter
	logger  *log.Logger
	mtr     *metrics.AlignMetrics

	settle    time.Duration
	strategy  Strategy
	optimized []string

	state     State
	run       *run
	lastErr   error
	positions map[string]float64

	scheduler *sched.Scheduler
	timer     *sched.Timer
	period    time.Duration
}

// NewController wires the optimizer core. store may be nil when
// snapshots are not used; db may be nil for in-memory snapshots only.
func NewController(p motion.Positioner, sig motion.SignalSource, space *axes.Space, store *Store, logger *log.Logger) *Controller {
	c := &Controller{
		positioner: p,
		signal:     sig,
		space:      space,
		store:      store,
		sampler:    scan.NewSampler(p, sig, 0, logger.WithPrefix("sampler")),
		stepper:    scan.NewGradientStepper(p, sig, 0, 0, logger.WithPrefix("gradient")),
		fitter:     fit.NewFitter(logger.WithPrefix("fit")),
		logger:     logger,
		positions:  make(map[string]float64),
	}
	c.refreshPositions()
	return c
}

// SetPersistence attaches the snapshot database; saved alignments are
// flushed to it on demand.
func (c *Controller) SetPersistence(db *DB) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
}

// SetMetrics attaches the metrics set.
func (c *Controller) SetMetrics(m *metrics.AlignMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mtr = m
}

// Configure applies settings. Range edits are clamped by the axis
// space; a negative settle delay is rejected with a warning and the
// previous value kept, and the delay is capped at maxSettleDelay.
func (c *Controller) Configure(s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for axis, r := range s.AxisRanges {
		if err := c.space.SetRange(axis, r.Min, r.Max, r.Step); err != nil {
			return err
		}
	}
	if s.OptimizedAxes != nil {
		if _, err := c.space.Select(s.OptimizedAxes); err != nil {
			return err
		}
		c.optimized = append([]string(nil), s.OptimizedAxes...)
	}
	if s.Strategy != nil {
		c.strategy = *s.Strategy
	}

	switch {
	case s.SettleDelay < 0:
		c.logger.Warn("settle delay must not be negative, keeping %v", c.settle)
	case s.SettleDelay > maxSettleDelay:
		c.logger.Warn("settle delay %v exceeds the %v bound, clamping", s.SettleDelay, maxSettleDelay)
		c.settle = maxSettleDelay
	default:
		c.settle = s.SettleDelay
	}
	return nil
}

// idlePollPeriod is the timer period while no run is active. Start
// rearms the timer immediately, so this only bounds the recovery time
// if a start lands while the tick callback is mid-flight.
const idlePollPeriod = 500 * time.Millisecond

// Drive registers the controller's tick timer on the scheduler. The
// timer polls slowly while Idle and is armed to fire immediately by
// Start.
func (c *Controller) Drive(s *sched.Scheduler, period time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduler = s
	c.period = period
	c.timer = s.RegisterTimer(func(eventtime float64) float64 {
		if c.Tick() == Idle {
			return eventtime + idlePollPeriod.Seconds()
		}
		return eventtime + c.period.Seconds()
	}, sched.Now)
}

// Start begins an optimization run with the configured strategy and
// axes. It fails with ALREADY_RUNNING unless the controller is Idle.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return errors.AlreadyRunningError(c.state.String())
	}

	ids := c.optimized
	if len(ids) == 0 {
		ids = c.space.Axes()
	}
	selection, err := c.space.Select(ids)
	if err != nil {
		return err
	}

	preRun, err := c.positioner.Pos(selection)
	if err != nil {
		return errors.AcquisitionError("pre-run position query", err)
	}

	c.run = &run{
		id:        uuid.NewString(),
		strategy:  c.strategy,
		selection: selection,
		preRun:    preRun,
		started:   time.Now(),
	}
	c.lastErr = nil

	switch c.strategy {
	case Gradient:
		start := make([]float64, len(selection))
		offsets := make([]float64, len(selection))
		ranges := c.space.Ranges()
		for i, axis := range selection {
			start[i] = preRun[axis]
			offsets[i] = ranges[axis].Step
		}
		c.stepper.SetSettle(c.settle)
		c.stepper.Begin(selection, start, offsets)
		c.state = Stepping
		c.logger.Info("gradient run %s over %d axes", c.run.id, len(selection))
	default:
		points := scan.Grid(selection, c.space.Ranges())
		c.sampler.SetSettle(c.settle)
		c.sampler.Begin(selection, points)
		c.state = Scanning
		c.logger.Info("raster run %s: %d points over %d axes", c.run.id, len(points), len(selection))
	}

	if c.mtr != nil {
		c.mtr.RunsStarted.Inc(metrics.Labels{"strategy": c.strategy.String()})
	}
	if c.scheduler != nil && c.timer != nil {
		c.scheduler.UpdateTimer(c.timer, sched.Now)
	}
	return nil
}

// Tick advances the state machine by one step. It is a no-op while
// Idle and re-entrant only in the sense that the scheduler invokes it
// strictly serially.
func (c *Controller) Tick() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Scanning:
		c.tickScan()
	case Stepping:
		c.tickStep()
	case Converged:
		c.tickConverged()
	case Fitting:
		c.tickFit()
	case Committing:
		c.tickCommit()
	}
	if c.mtr != nil {
		c.mtr.State.Set(nil, float64(c.state))
	}
	return c.state
}

func (c *Controller) tickScan() {
	res, err := c.sampler.Step()
	if err != nil {
		c.failRun(err, true)
		return
	}
	switch res {
	case scan.StepAdvanced:
		if c.mtr != nil {
			c.mtr.PointsSampled.Inc(nil)
		}
	case scan.StepDone:
		if c.mtr != nil {
			c.mtr.PointsSampled.Inc(nil)
		}
		c.state = Fitting
	}
}

func (c *Controller) tickStep() {
	res, err := c.stepper.Step()
	if err != nil {
		c.failRun(err, true)
		return
	}
	switch res {
	case scan.StepAdvanced:
		if c.mtr != nil {
			c.mtr.PointsSampled.Inc(nil)
		}
	case scan.StepDone:
		c.state = Converged
	}
}

func (c *Controller) tickConverged() {
	final := c.stepper.Final()
	if final == nil {
		c.failRun(errors.FitError("gradient run ended without samples"), false)
		return
	}
	if c.stepper.Exhausted() {
		c.logger.Warn("run %s: committing exhausted gradient position", c.run.id)
	}
	c.run.target = final
	c.state = Committing
}

func (c *Controller) tickFit() {
	start := time.Now()
	result, err := c.fitter.Fit(c.sampler.Samples(), c.run.selection)
	if c.mtr != nil {
		c.mtr.FitSeconds.Observe(nil, time.Since(start).Seconds())
	}
	if err != nil {
		// Fit failures never move hardware; the positioner stays at
		// the last scanned point.
		c.failRun(err, false)
		return
	}
	c.run.target = result.Center
	c.state = Committing
}

func (c *Controller) tickCommit() {
	req := make(map[string]float64, len(c.run.selection))
	for i, axis := range c.run.selection {
		req[axis] = c.run.target[i]
	}
	if _, err := c.positioner.MoveAbs(req); err != nil {
		c.failRun(errors.AcquisitionError("commit move", err), true)
		return
	}
	c.refreshPositions()
	c.logger.WithField("run", c.run.id).Info(
		"optimization complete after %v, committed %s", time.Since(c.run.started).Round(time.Millisecond), formatTarget(c.run.selection, c.run.target))
	if c.mtr != nil {
		c.mtr.RunsCompleted.Inc(metrics.Labels{"strategy": c.run.strategy.String()})
	}
	c.state = Idle
	c.run = nil
}

// Cancel stops the active run and best-effort restores the position
// recorded at Start. It is valid in Scanning, Stepping, and Fitting.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Scanning, Stepping, Fitting:
	default:
		return errors.New(errors.ErrAlreadyRunning,
			fmt.Sprintf("nothing to cancel in state %s", c.state))
	}

	c.logger.Info("run %s cancelled in state %s", c.run.id, c.state)
	c.rollback()
	c.state = Idle
	c.run = nil
	if c.mtr != nil {
		c.mtr.RunsCancelled.Inc(nil)
	}
	return nil
}

// failRun terminates the active run with err.
func (c *Controller) failRun(err error, rollback bool) {
	c.logger.WithField("run", c.run.id).Error("run failed: %v", err)
	c.lastErr = err
	if rollback {
		c.rollback()
	} else {
		c.refreshPositions()
	}
	c.state = Idle
	c.run = nil
	if c.mtr != nil {
		c.mtr.RunsFailed.Inc(nil)
	}
}

// rollback restores the pre-run position. The rollback move itself can
// fail; that is reported but never re-raised into a further rollback.
func (c *Controller) rollback() {
	if c.run == nil || c.run.preRun == nil {
		return
	}
	if _, err := c.positioner.MoveAbs(c.run.preRun); err != nil {
		c.logger.WithError(err).Warn("rollback move failed; positioner left at last position")
		return
	}
	c.refreshPositions()
}

// refreshPositions re-reads the cached position of every known axis.
func (c *Controller) refreshPositions() {
	pos, err := c.positioner.Pos(c.space.Axes())
	if err != nil {
		c.logger.WithError(err).Warn("position refresh failed")
		return
	}
	c.positions = pos
}

// Status reports the controller state, progress fraction, and the
// last run-fatal error.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:    c.state,
		Strategy: c.strategy.String(),
	}
	if c.run != nil {
		st.RunID = c.run.id
		st.Strategy = c.run.strategy.String()
	}
	switch c.state {
	case Scanning:
		st.Progress = c.sampler.Progress()
	case Stepping:
		st.Progress = c.stepper.Progress()
	case Converged, Fitting, Committing:
		st.Progress = 1
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Positions returns the cached axis positions.
func (c *Controller) Positions() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.positions))
	for axis, pos := range c.positions {
		out[axis] = pos
	}
	return out
}

// MoveTo commands an absolute move outside of a run and refreshes the
// cached positions. Targets beyond the hardware limits are rejected
// rather than clamped.
func (c *Controller) MoveTo(target map[string]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return errors.AlreadyRunningError(c.state.String())
	}
	for axis, v := range target {
		con, err := c.space.Constraint(axis)
		if err != nil {
			return err
		}
		if v < con.Min || v > con.Max {
			return errors.OutOfRangeError(axis, v, con.Min, con.Max)
		}
	}
	if _, err := c.positioner.MoveAbs(target); err != nil {
		return errors.AcquisitionError("move", err)
	}
	c.refreshPositions()
	return nil
}

// SaveAlignment snapshots the current position of every known axis
// under name and flushes the store if persistence is attached.
func (c *Controller) SaveAlignment(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, err := c.positioner.Pos(c.space.Axes())
	if err != nil {
		return errors.AcquisitionError("position query", err)
	}
	c.positions = pos
	c.store.Save(name, pos)
	if c.db != nil {
		return c.db.Flush(c.store)
	}
	return nil
}

// RecallAlignment moves the positioner to the named snapshot and
// refreshes the cached positions. Rejected while a run is active.
func (c *Controller) RecallAlignment(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return errors.AlreadyRunningError(c.state.String())
	}
	snap, err := c.store.Recall(name)
	if err != nil {
		return err
	}
	if _, err := c.positioner.MoveAbs(snap); err != nil {
		return errors.AcquisitionError("recall move", err)
	}
	c.refreshPositions()
	c.logger.Info("recalled alignment '%s'", name)
	return nil
}

// Store exposes the snapshot store (for export/import surfaces).
func (c *Controller) Store() *Store {
	return c.store
}

// Space exposes the axis space.
func (c *Controller) Space() *axes.Space {
	return c.space
}

func formatTarget(selection axes.Selection, target []float64) string {
	parts := make([]string, len(selection))
	for i, axis := range selection {
		parts[i] = fmt.Sprintf("%s=%.6g", axis, target[i])
	}
	return strings.Join(parts, " ")
}
