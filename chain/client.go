// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain implements the backend client: the four wallet facing chain
// operations built on top of a gated backend.Backend.
//
// Every backend call goes through the shared gate. Lookups and broadcasts
// surface failures to the caller, while fee estimates and UTXO listings
// degrade to safe defaults so the wallet always gets an answer.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/nostrbridge/backend"
	"github.com/btcsuite/nostrbridge/gate"
)

const (
	// LookupTimeout bounds each backend call made by a lookup.
	LookupTimeout = 30 * time.Second

	// BroadcastTimeout bounds a transaction broadcast.
	BroadcastTimeout = 30 * time.Second

	// FeeTimeout bounds each fee estimate request.
	FeeTimeout = 30 * time.Second

	// UtxoTimeout bounds each backend call made while listing UTXOs.
	UtxoTimeout = 45 * time.Second

	// GapLimit is the number of addresses derived per branch of an
	// extended public key.
	GapLimit = 20
)

// Operation names used for logging and metrics.
const (
	opLookup    = "lookup"
	opBroadcast = "broadcast_tx"
	opFees      = "get_fees"
	opUtxos     = "get_utxos"
)

var (
	// ErrInvalidTransaction is returned when a transaction to broadcast
	// cannot be decoded or fails structural checks. The backend is never
	// contacted.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInvalidQuery is returned when a lookup query is neither an
	// address nor an extended public key for the active network.
	ErrInvalidQuery = errors.New("invalid query")
)

// Recorder receives per call statistics. It is implemented by the metrics
// package.
type Recorder interface {
	// GateCall is invoked once for every gated backend call.
	GateCall(op string, outcome gate.Outcome, elapsed time.Duration)

	// Degraded is invoked when an operation answers with defaults.
	Degraded(op string)
}

type noopRecorder struct{}

func (noopRecorder) GateCall(string, gate.Outcome, time.Duration) {}
func (noopRecorder) Degraded(string)                              {}

// Timeouts bounds the individual gated backend calls of each operation.
type Timeouts struct {
	Lookup    time.Duration
	Broadcast time.Duration
	Fees      time.Duration
	Utxos     time.Duration
}

// DefaultTimeouts returns the standard per call timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Lookup:    LookupTimeout,
		Broadcast: BroadcastTimeout,
		Fees:      FeeTimeout,
		Utxos:     UtxoTimeout,
	}
}

// Config holds the collaborators of a Client.
type Config struct {
	// Backend is the data source queried through the gate.
	Backend backend.Backend

	// Gate serializes access to Backend. It must be shared by every user
	// of Backend.
	Gate *gate.Gate

	// ChainParams selects the network addresses and keys must belong to.
	ChainParams *chaincfg.Params

	// Timeouts defaults to DefaultTimeouts when left zero.
	Timeouts Timeouts

	// Recorder is optional.
	Recorder Recorder
}

// Client runs wallet operations against the gated backend. It is safe for
// concurrent use.
type Client struct {
	cfg Config
}

// New returns a Client using cfg.
func New(cfg Config) *Client {
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}

	return &Client{cfg: cfg}
}

// call runs fn through the gate and records its outcome.
func call[T any](ctx context.Context, c *Client, op string,
	timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {

	start := time.Now()
	v, err := gate.Do(ctx, c.cfg.Gate, timeout, fn)

	outcome := gate.OutcomeOf(err)
	c.cfg.Recorder.GateCall(op, outcome, time.Since(start))

	if err != nil {
		log.Debugf("Backend call for %s failed (%s): %v", op, outcome,
			err)
	}

	return v, err
}

// confirmations returns the number of confirmations of an item mined at
// height given the tip. Unconfirmed items and items at or above the sampled
// tip have zero confirmations.
func confirmations(height, tip int32) uint32 {
	if height <= 0 || height >= tip {
		return 0
	}

	return uint32(tip - height)
}
