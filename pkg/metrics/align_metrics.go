// Alignment-specific metric set
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

// AlignMetrics is the metric set published by the alignment
// controller.
type AlignMetrics struct {
	RunsStarted   *Counter
	RunsCompleted *Counter
	RunsFailed    *Counter
	RunsCancelled *Counter
	PointsSampled *Counter
	FitSeconds    *Histogram
	State         *Gauge
}

// NewAlignMetrics creates and registers the alignment metric set.
func NewAlignMetrics(reg *Registry) *AlignMetrics {
	m := &AlignMetrics{
		RunsStarted:   NewCounter("alignd_runs_started_total", "Optimization runs started, by strategy"),
		RunsCompleted: NewCounter("alignd_runs_completed_total", "Optimization runs committed, by strategy"),
		RunsFailed:    NewCounter("alignd_runs_failed_total", "Optimization runs terminated by an error"),
		RunsCancelled: NewCounter("alignd_runs_cancelled_total", "Optimization runs cancelled by the caller"),
		PointsSampled: NewCounter("alignd_points_sampled_total", "Scan points acquired"),
		FitSeconds:    NewHistogram("alignd_fit_seconds", "Peak fit duration in seconds", DefaultBuckets()),
		State:         NewGauge("alignd_controller_state", "Controller state machine position"),
	}
	reg.MustRegister(m.RunsStarted)
	reg.MustRegister(m.RunsCompleted)
	reg.MustRegister(m.RunsFailed)
	reg.MustRegister(m.RunsCancelled)
	reg.MustRegister(m.PointsSampled)
	reg.MustRegister(m.FitSeconds)
	reg.MustRegister(m.State)
	return m
}
