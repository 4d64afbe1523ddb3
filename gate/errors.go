// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gate

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCooldownActive is returned without contacting the backend while
	// the gate is cooling down after a timed out call.
	ErrCooldownActive = errors.New("backend cooldown active")

	// ErrTimeout is returned when a backend call exceeds its timeout. It
	// arms the cooldown window.
	ErrTimeout = errors.New("backend call timed out")
)

// BackendError wraps an error returned by the backend itself. Backend errors
// never arm the cooldown window.
type BackendError struct {
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %v", e.Err)
}

// Unwrap returns the underlying backend error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Outcome classifies the result of a single Execute call so callers can
// count and log gate activity.
type Outcome string

const (
	// OutcomeSuccess means the operation ran and returned a result.
	OutcomeSuccess Outcome = "success"

	// OutcomeCooldown means the call was refused by an active cooldown.
	OutcomeCooldown Outcome = "cooldown"

	// OutcomeTimeout means the operation exceeded its timeout.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeBackendError means the backend returned a failure.
	OutcomeBackendError Outcome = "backend_error"

	// OutcomeCanceled means the caller's context ended before the
	// operation could complete.
	OutcomeCanceled Outcome = "canceled"
)

// OutcomeOf maps an error returned by Execute to its Outcome.
func OutcomeOf(err error) Outcome {
	var backendErr *BackendError

	switch {
	case err == nil:
		return OutcomeSuccess

	case errors.Is(err, ErrCooldownActive):
		return OutcomeCooldown

	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout

	case errors.As(err, &backendErr):
		return OutcomeBackendError

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):

		return OutcomeCanceled

	default:
		return OutcomeBackendError
	}
}
