// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// psbtMagic prefixes every serialized PSBT.
var psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

// BroadcastTx validates and relays a hex encoded transaction. A finalized
// PSBT is accepted in place of a raw transaction. Malformed input fails with
// ErrInvalidTransaction without touching the gate.
func (c *Client) BroadcastTx(ctx context.Context,
	txHex string) (*chainhash.Hash, error) {

	tx, err := decodeTx(txHex)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	localHash := tx.TxHash()
	log.Infof("Broadcasting transaction %v (%d bytes)", localHash,
		buf.Len())

	txid, err := call(ctx, c, opBroadcast, c.cfg.Timeouts.Broadcast,
		func(ctx context.Context) (*chainhash.Hash, error) {
			return c.cfg.Backend.BroadcastRaw(ctx, buf.Bytes())
		},
	)
	if err != nil {
		return nil, err
	}

	if !txid.IsEqual(&localHash) {
		log.Warnf("Backend reported txid %v for transaction %v", txid,
			localHash)
	}

	return txid, nil
}

// decodeTx parses and sanity checks a raw transaction or finalized PSBT.
func decodeTx(txHex string) (*wire.MsgTx, error) {
	txHex = strings.TrimSpace(txHex)
	if txHex == "" {
		return nil, fmt.Errorf("%w: empty transaction",
			ErrInvalidTransaction)
	}

	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	var tx *wire.MsgTx
	if bytes.HasPrefix(raw, psbtMagic) {
		tx, err = extractPsbt(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction,
				err)
		}
	} else {
		tx = wire.NewMsgTx(wire.TxVersion)
		r := bytes.NewReader(raw)
		if err := tx.Deserialize(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction,
				err)
		}
		if r.Len() != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes",
				ErrInvalidTransaction, r.Len())
		}
	}

	if blockchain.IsCoinBaseTx(tx) {
		return nil, fmt.Errorf("%w: coinbase transaction",
			ErrInvalidTransaction)
	}

	err = blockchain.CheckTransactionSanity(btcutil.NewTx(tx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	return tx, nil
}

// extractPsbt finalizes a PSBT where possible and extracts the network
// transaction.
func extractPsbt(raw []byte) (*wire.MsgTx, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, err
	}

	if !packet.IsComplete() {
		if err := psbt.MaybeFinalizeAll(packet); err != nil {
			return nil, fmt.Errorf("psbt is not finalized: %w", err)
		}
	}

	return psbt.Extract(packet)
}
