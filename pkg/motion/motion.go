// External instrument interfaces for the alignd host
//
// The optimizer core is unit-agnostic: axis positions are real numbers
// in whatever native unit the instrument reports. Implementations of
// these interfaces translate to the device wire protocol; the core
// never assumes exclusive ownership of the hardware and checks busy
// state before every move.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

// Constraint describes the hardware limits of one axis.
type Constraint struct {
	Min  float64
	Max  float64
	Step float64
}

// Positioner moves and queries a set of labeled axes.
// All calls are synchronous remote calls and may fail on
// communication errors.
type Positioner interface {
	// Constraints returns the per-axis hardware limits.
	Constraints() (map[string]Constraint, error)

	// Pos returns the current position of the given axes.
	Pos(axes []string) (map[string]float64, error)

	// MoveAbs commands an absolute move and returns the achieved
	// position per axis (which may differ from the request due to
	// hardware quantization). The target map is only valid for the
	// duration of the call; implementations must copy what they keep.
	MoveAbs(target map[string]float64) (map[string]float64, error)

	// Status returns the busy flag per axis (true while moving).
	Status(axes []string) (map[string]bool, error)

	// Abort stops all motion immediately.
	Abort() error

	// Calibrate runs the hardware calibration routine on the axes.
	Calibrate(axes []string) error
}

// SignalSource reports the scalar feedback measurement, assumed to
// reflect the instrument state at call time.
type SignalSource interface {
	Value() (float64, error)
}
