// Unit tests for the unified error type
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(ErrFit, "solver stalled")
	if got := err.Error(); got != "[FIT] solver stalled" {
		t.Errorf("unexpected format: %s", got)
	}

	withAxis := InvalidAxisError("rotator")
	if !strings.Contains(withAxis.Error(), "[INVALID_AXIS:rotator]") {
		t.Errorf("axis missing from format: %s", withAxis.Error())
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := AcquisitionError("status query", cause)

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if err.Code != ErrAcquisition {
		t.Errorf("expected ACQUISITION, got %s", err.Code)
	}
}

func TestIs(t *testing.T) {
	if !Is(UnknownAlignmentError("peak"), ErrUnknownAlignment) {
		t.Error("Is failed on matching code")
	}
	if Is(UnknownAlignmentError("peak"), ErrFit) {
		t.Error("Is matched wrong code")
	}
	if Is(stderrors.New("plain"), ErrFit) {
		t.Error("Is matched non-AlignError")
	}
	if Is(nil, ErrFit) {
		t.Error("Is matched nil")
	}
}

func TestClassification(t *testing.T) {
	if !IsValidation(OutOfRangeError("x", 11, 0, 10)) || !IsValidation(InvalidAxisError("q")) {
		t.Error("range and axis errors are validation")
	}
	if IsValidation(StoreError("flush", nil)) {
		t.Error("store errors are not validation")
	}
}

func TestSetContext(t *testing.T) {
	err := New(ErrConfig, "bad value").SetContext("key", "tick_period")
	if err.Context["key"] != "tick_period" {
		t.Error("context not recorded")
	}
}
