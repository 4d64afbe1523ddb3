// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package backend defines the blocking interface the bridge uses to reach a
// Bitcoin full node or indexer. Concrete drivers live in the electrum and
// bitcoind sub-packages.
//
// Drivers are not required to be safe for concurrent use: every call is
// serialized by the gate before it reaches them.
package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrNoEstimate is returned by EstimateFee when the backend has no
	// estimate for the requested target.
	ErrNoEstimate = errors.New("no fee estimate available")

	// ErrRejected is wrapped by BroadcastRaw when the backend refused the
	// transaction.
	ErrRejected = errors.New("transaction rejected")
)

// HistoryEntry is a transaction that touched an address. Height is zero or
// negative for mempool transactions.
type HistoryEntry struct {
	TxID   chainhash.Hash
	Height int32

	// Amount is the net change the transaction made to the address
	// balance. It is negative when the address paid out more than it
	// received.
	Amount btcutil.Amount

	// BlockTime is the timestamp of the confirming block. It is zero
	// while unconfirmed or when the block could not be fetched.
	BlockTime time.Time
}

// AddressHistory is the balance and history of a single address.
type AddressHistory struct {
	Confirmed    btcutil.Amount
	Unconfirmed  btcutil.Amount
	Transactions []HistoryEntry
}

// Unspent is an unspent output paying to a looked up address. Height is zero
// or negative while the output is unconfirmed.
type Unspent struct {
	OutPoint wire.OutPoint
	Value    btcutil.Amount
	Height   int32
}

// Backend is a blocking Bitcoin data source.
type Backend interface {
	// Lookup returns the balance and transaction history of address.
	Lookup(ctx context.Context, address btcutil.Address) (*AddressHistory,
		error)

	// BroadcastRaw relays a serialized transaction and returns the txid
	// reported by the backend.
	BroadcastRaw(ctx context.Context, rawTx []byte) (*chainhash.Hash, error)

	// EstimateFee returns the fee rate in BTC/kvB expected to confirm
	// within targetBlocks.
	EstimateFee(ctx context.Context, targetBlocks uint32) (float64, error)

	// ListUnspent returns the unspent outputs paying to address.
	ListUnspent(ctx context.Context, address btcutil.Address) ([]Unspent,
		error)

	// CurrentHeight returns the height of the best known block.
	CurrentHeight(ctx context.Context) (int32, error)

	// Close releases the connection to the backend.
	Close() error
}

// ScriptHash returns the Electrum style script hash of address: the
// byte-reversed sha256 of its output script, hex encoded.
func ScriptHash(address btcutil.Address) (string, error) {
	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return "", err
	}

	h := sha256.Sum256(pkScript)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}

	return hex.EncodeToString(h[:]), nil
}

// NetAmount returns what tx paid to pkScript minus what it spent from it.
// Spent values are resolved through known, which must hold the transactions
// that funded pkScript. The address history of pkScript always contains
// them.
func NetAmount(pkScript []byte, tx *wire.MsgTx,
	known map[chainhash.Hash]*wire.MsgTx) btcutil.Amount {

	var net btcutil.Amount
	for _, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, pkScript) {
			net += btcutil.Amount(out.Value)
		}
	}

	for _, in := range tx.TxIn {
		prev, ok := known[in.PreviousOutPoint.Hash]
		if !ok || int(in.PreviousOutPoint.Index) >= len(prev.TxOut) {
			continue
		}

		out := prev.TxOut[in.PreviousOutPoint.Index]
		if bytes.Equal(out.PkScript, pkScript) {
			net -= btcutil.Amount(out.Value)
		}
	}

	return net
}
