// Shared wiring between subcommands.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"math/rand"
	"os"
	"time"

	"alignd/pkg/align"
	"alignd/pkg/axes"
	"alignd/pkg/config"
	"alignd/pkg/log"
	"alignd/pkg/motion"
)

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.New("alignd")
	logger.SetLevel(log.ParseLevel(cfg.Log.Level))
	if cfg.Log.Format == "json" {
		logger.SetFormat(log.FormatJSON)
	}
	logger.SetWriter(os.Stderr)
	return logger
}

// simConstraints derives hardware limits for the simulated positioner
// from the configured scan ranges, with a two-axis default when the
// configuration names none.
func simConstraints(cfg *config.Config) map[string]motion.Constraint {
	if len(cfg.Align.Axes) == 0 {
		return map[string]motion.Constraint{
			"x": {Min: 0, Max: 10, Step: 0.01},
			"y": {Min: 0, Max: 10, Step: 0.01},
		}
	}
	constraints := make(map[string]motion.Constraint, len(cfg.Align.Axes))
	for axis, r := range cfg.Align.Axes {
		step := r.Step / 100
		if step <= 0 {
			step = 0.01
		}
		constraints[axis] = motion.Constraint{Min: r.Min, Max: r.Max, Step: step}
	}
	return constraints
}

// buildSimRig constructs the simulated devices: a positioner honoring
// the configured limits and a noisy Gaussian signal peaked at an
// arbitrary point inside each range.
func buildSimRig(cfg *config.Config) (motion.Positioner, motion.SignalSource) {
	constraints := simConstraints(cfg)
	pos := motion.NewSimPositioner(constraints)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	center := make(map[string]float64, len(constraints))
	width := make(map[string]float64, len(constraints))
	for axis, c := range constraints {
		span := c.Max - c.Min
		center[axis] = c.Min + span*(0.25+0.5*rng.Float64())
		width[axis] = span / 8
	}
	sig := &motion.GaussianSignal{
		Positioner: pos,
		Amplitude:  100,
		Background: 5,
		Center:     center,
		Width:      width,
		Noise:      0.05,
		Rand:       rng,
	}
	return pos, sig
}

// controllerSettings maps the configuration onto controller settings.
func controllerSettings(cfg *config.Config) (align.Settings, error) {
	strategy, err := align.ParseStrategy(cfg.Align.Strategy)
	if err != nil {
		return align.Settings{}, err
	}
	s := align.Settings{
		Strategy:    &strategy,
		SettleDelay: cfg.Align.SettleDelay.Std(),
	}
	if len(cfg.Align.Axes) > 0 {
		s.AxisRanges = make(map[string]axes.Range, len(cfg.Align.Axes))
		for axis, r := range cfg.Align.Axes {
			s.AxisRanges[axis] = axes.Range{Axis: axis, Min: r.Min, Max: r.Max, Step: r.Step}
		}
	}
	if len(cfg.Align.OptimizedAxes) > 0 {
		s.OptimizedAxes = cfg.Align.OptimizedAxes
	}
	return s, nil
}

// buildController assembles the controller over the given devices.
func buildController(cfg *config.Config, pos motion.Positioner, sig motion.SignalSource, logger *log.Logger) (*align.Controller, error) {
	space, err := axes.Build(pos, logger.WithPrefix("axes"))
	if err != nil {
		return nil, err
	}
	store := align.NewStore(logger.WithPrefix("store"))
	ctrl := align.NewController(pos, sig, space, store, logger.WithPrefix("align"))

	settings, err := controllerSettings(cfg)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Configure(settings); err != nil {
		return nil, err
	}
	return ctrl, nil
}
