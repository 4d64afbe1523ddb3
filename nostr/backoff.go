// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nostr

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

const (
	// DefaultMinBackoff is the delay before the first reconnect attempt.
	DefaultMinBackoff = time.Second

	// DefaultMaxBackoff caps the delay between reconnect attempts.
	DefaultMaxBackoff = 2 * time.Minute

	// defaultJitter spreads reconnects of many bridges sharing a relay.
	defaultJitter = 0.2
)

// Backoff computes jittered exponential reconnect delays.
type Backoff struct {
	// Min is the base delay of the first attempt.
	Min time.Duration

	// Max caps the base delay.
	Max time.Duration

	// Jitter defines the jitter scaler. The delay is drawn from
	// [base * (1 - Jitter), base * (1 + Jitter)].
	//
	// NOTE: when Jitter is 0, the delays are exact powers of two of Min.
	Jitter float64
}

// DefaultBackoff returns the reconnect policy used for relays.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    DefaultMinBackoff,
		Max:    DefaultMaxBackoff,
		Jitter: defaultJitter,
	}
}

// base returns the un-jittered delay of the given zero based attempt.
func (b Backoff) base(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}

	d := b.Min << uint(attempt)
	if d <= 0 || d > b.Max {
		return b.Max
	}

	return d
}

// Delay returns the delay to wait before the given zero based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.base(attempt)

	min, max := calculateMinMax(d, b.Jitter)
	if max == min {
		return d
	}

	return time.Duration(rand.Int63n(max-min) + min) //nolint:gosec
}

// calculateMinMax calculates the min and max duration values. If the
// calculated min is negative, it will be set to 0.
func calculateMinMax(d time.Duration, scaler float64) (int64, int64) {
	// If the scaler is negative, we will panic.
	if scaler < 0 {
		panic(errors.New("scaler must be positive"))
	}

	min := math.Floor(float64(d) * (1 - scaler))
	max := math.Ceil(float64(d) * (1 + scaler))

	// If the scaler is greater than 1, we would use a zero min instead of
	// a negative one.
	if 1-scaler < 0 {
		min = 0
	}

	return int64(min), int64(max)
}
