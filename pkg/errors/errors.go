// Unified error handling for the alignd host
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Validation errors
	ErrInvalidAxis ErrorCode = "INVALID_AXIS"
	ErrOutOfRange  ErrorCode = "OUT_OF_RANGE"

	// Run-fatal errors
	ErrAcquisition ErrorCode = "ACQUISITION"
	ErrFit         ErrorCode = "FIT"

	// Caller misuse, rejected synchronously
	ErrAlreadyRunning   ErrorCode = "ALREADY_RUNNING"
	ErrUnknownAlignment ErrorCode = "UNKNOWN_ALIGNMENT"

	// Infrastructure errors
	ErrConfig ErrorCode = "CONFIG"
	ErrStore  ErrorCode = "STORE"
)

// AlignError is the unified error type for the host system
type AlignError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Axis is the axis identifier involved (if applicable)
	Axis string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AlignError) Error() string {
	if e.Axis != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Axis, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AlignError) Unwrap() error {
	return e.Err
}

// SetAxis sets the axis identifier
func (e *AlignError) SetAxis(axis string) *AlignError {
	e.Axis = axis
	return e
}

// SetContext adds additional context
func (e *AlignError) SetContext(key string, value interface{}) *AlignError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AlignError
func New(code ErrorCode, message string) *AlignError {
	return &AlignError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AlignError {
	return &AlignError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// InvalidAxisError creates an error for an unknown or unselected axis
func InvalidAxisError(axis string) *AlignError {
	return New(ErrInvalidAxis, fmt.Sprintf("axis '%s' is not known to the positioner", axis)).
		SetAxis(axis)
}

// OutOfRangeError creates an error for a requested value outside hardware limits
func OutOfRangeError(axis string, value, min, max float64) *AlignError {
	return New(ErrOutOfRange, fmt.Sprintf("value %.6g outside hardware limits [%.6g, %.6g]", value, min, max)).
		SetAxis(axis)
}

// AcquisitionError creates an error for a hardware communication failure
// during an active run
func AcquisitionError(operation string, err error) *AlignError {
	return Wrap(err, ErrAcquisition, fmt.Sprintf("%s failed", operation))
}

// FitError creates an error for insufficient data or solver failure
func FitError(reason string) *AlignError {
	return New(ErrFit, reason)
}

// AlreadyRunningError creates an error for starting a run while one is active
func AlreadyRunningError(state string) *AlignError {
	return New(ErrAlreadyRunning, fmt.Sprintf("optimization already active (state %s)", state))
}

// UnknownAlignmentError creates an error for recalling an absent snapshot
func UnknownAlignmentError(name string) *AlignError {
	return New(ErrUnknownAlignment, fmt.Sprintf("no alignment named '%s'", name))
}

// ConfigError creates an error for a configuration load or validation failure
func ConfigError(message string, err error) *AlignError {
	return Wrap(err, ErrConfig, message)
}

// StoreError creates an error for a snapshot persistence failure
func StoreError(operation string, err error) *AlignError {
	return Wrap(err, ErrStore, fmt.Sprintf("alignment store %s failed", operation))
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	if alignErr, ok := err.(*AlignError); ok {
		return alignErr.Code == code
	}
	return false
}

// IsValidation checks if the error is recoverable input validation
func IsValidation(err error) bool {
	return Is(err, ErrInvalidAxis) || Is(err, ErrOutOfRange)
}
