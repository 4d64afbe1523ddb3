// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package gate serializes and throttles access to a single shared backend
// connection.
//
// At most one backend operation runs at any time. Callers queue in arrival
// order for a single admission token, consecutive calls are spaced by a
// minimum interval, and a call that exceeds its timeout puts the gate into a
// fixed cooldown window during which new calls are refused immediately.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMinInterval is the minimum spacing between two backend calls.
	DefaultMinInterval = 100 * time.Millisecond

	// DefaultCooldownPeriod is the length of the refusal window entered
	// after a backend call times out.
	DefaultCooldownPeriod = 30 * time.Second
)

// Config houses the tunables of a Gate.
type Config struct {
	// MinInterval is the minimum time between the end of one backend call
	// and the start of the next.
	MinInterval time.Duration

	// CooldownPeriod is how long new calls are refused after a timeout.
	CooldownPeriod time.Duration

	// Clock is the time source. It defaults to the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns a Config populated with the default values.
func DefaultConfig() Config {
	return Config{
		MinInterval:    DefaultMinInterval,
		CooldownPeriod: DefaultCooldownPeriod,
		Clock:          clock.NewDefaultClock(),
	}
}

// Operation is a backend call with its parameters already bound. The context
// passed in expires when the call's timeout elapses.
type Operation func(ctx context.Context) (interface{}, error)

// Gate owns the admission token and the throttling state guarding the
// backend. A single Gate is created per process and shared by reference.
type Gate struct {
	cfg Config

	// token is the binary admission token. semaphore.Weighted serves
	// waiters in FIFO order.
	token *semaphore.Weighted

	// mu guards the fields below.
	mu            sync.Mutex
	lastCallAt    time.Time
	cooldownUntil fn.Option[time.Time]
}

// New creates a Gate using the given configuration.
func New(cfg Config) *Gate {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Gate{
		cfg:           cfg,
		token:         semaphore.NewWeighted(1),
		cooldownUntil: fn.None[time.Time](),
	}
}

// Execute runs op once the admission token is available and the minimum
// interval since the previous call has passed. The operation runs in its own
// goroutine under the given timeout; if the timeout fires first its eventual
// result is discarded, the cooldown window is armed and ErrTimeout is
// returned.
//
// A call made while the cooldown is active fails with ErrCooldownActive
// without queuing. Errors returned by op are wrapped in a BackendError.
// Cancelling ctx only aborts waiting; it never arms the cooldown.
func (g *Gate) Execute(ctx context.Context, timeout time.Duration,
	op Operation) (interface{}, error) {

	if err := g.checkCooldown(); err != nil {
		return nil, err
	}

	if err := g.token.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.token.Release(1)

	// A call that timed out while we were queued leaves the backend in a
	// state we should not pile onto.
	if err := g.checkCooldown(); err != nil {
		return nil, err
	}

	if err := g.waitInterval(ctx); err != nil {
		return nil, err
	}
	defer g.markCompleted()

	return g.run(ctx, timeout, op)
}

// Do is a typed wrapper around Execute.
func Do[T any](ctx context.Context, g *Gate, timeout time.Duration,
	op func(context.Context) (T, error)) (T, error) {

	var zero T

	v, err := g.Execute(ctx, timeout,
		func(ctx context.Context) (interface{}, error) {
			return op(ctx)
		},
	)
	if err != nil {
		return zero, err
	}

	result, _ := v.(T)

	return result, nil
}

// result carries the output of an operation back to Execute.
type result struct {
	value interface{}
	err   error
}

// run invokes op on a separate goroutine and waits for it, the timeout, or
// the caller's context, whichever comes first.
func (g *Gate) run(ctx context.Context, timeout time.Duration,
	op Operation) (interface{}, error) {

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The channel is buffered so an abandoned operation can still deliver
	// its result and exit.
	done := make(chan result, 1)
	go func() {
		value, err := op(callCtx)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.value, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// The operation may notice the expired deadline before we do.
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			g.armCooldown()
			return nil, ErrTimeout
		}

		return nil, &BackendError{Err: r.err}

	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.armCooldown()
		return nil, ErrTimeout
	}
}

// checkCooldown returns ErrCooldownActive if the cooldown window has not yet
// elapsed.
func (g *Gate) checkCooldown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.cfg.Clock.Now()

	var err error
	g.cooldownUntil.WhenSome(func(until time.Time) {
		if now.Before(until) {
			err = fmt.Errorf("%w: %v remaining", ErrCooldownActive,
				until.Sub(now).Round(time.Millisecond))
		}
	})

	return err
}

// armCooldown starts a new cooldown window. An active window is never
// extended.
func (g *Gate) armCooldown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.cfg.Clock.Now()
	if g.cooldownUntil.UnwrapOr(time.Time{}).After(now) {
		return
	}

	g.cooldownUntil = fn.Some(now.Add(g.cfg.CooldownPeriod))
}

// waitInterval blocks until MinInterval has passed since the last completed
// call.
func (g *Gate) waitInterval(ctx context.Context) error {
	g.mu.Lock()
	wait := g.cfg.MinInterval - g.cfg.Clock.Now().Sub(g.lastCallAt)
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	select {
	case <-g.cfg.Clock.TickAfter(wait):
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// markCompleted records the end of an admitted call.
func (g *Gate) markCompleted() {
	g.mu.Lock()
	g.lastCallAt = g.cfg.Clock.Now()
	g.mu.Unlock()
}
