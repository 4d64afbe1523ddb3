// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/nostrbridge/backend"
	"github.com/btcsuite/nostrbridge/protocol"
)

// Utxos lists the unspent outputs of addresses. It never fails: addresses
// that do not decode for the active network are skipped and any backend
// failure yields an empty list.
func (c *Client) Utxos(ctx context.Context,
	addresses []string) []protocol.UtxoInfo {

	type scanned struct {
		address string
		outputs []backend.Unspent
	}

	var results []scanned
	for _, encoded := range addresses {
		addr, err := btcutil.DecodeAddress(encoded, c.cfg.ChainParams)
		if err != nil || !addr.IsForNet(c.cfg.ChainParams) {
			log.Warnf("Skipping invalid address %q in UTXO request",
				encoded)
			continue
		}

		outputs, err := call(ctx, c, opUtxos, c.cfg.Timeouts.Utxos,
			func(ctx context.Context) ([]backend.Unspent, error) {
				return c.cfg.Backend.ListUnspent(ctx, addr)
			},
		)
		if err != nil {
			log.Warnf("Returning empty UTXO list: %v", err)
			c.cfg.Recorder.Degraded(opUtxos)

			return []protocol.UtxoInfo{}
		}

		results = append(results, scanned{encoded, outputs})
	}

	if len(results) == 0 {
		return []protocol.UtxoInfo{}
	}

	tip, err := call(ctx, c, opUtxos, c.cfg.Timeouts.Utxos,
		c.cfg.Backend.CurrentHeight,
	)
	if err != nil {
		log.Warnf("Returning empty UTXO list, tip unavailable: %v", err)
		c.cfg.Recorder.Degraded(opUtxos)

		return []protocol.UtxoInfo{}
	}

	utxos := make([]protocol.UtxoInfo, 0)
	for _, r := range results {
		for _, out := range r.outputs {
			if out.Value < 0 {
				continue
			}

			utxos = append(utxos, protocol.UtxoInfo{
				TxID:          out.OutPoint.Hash.String(),
				Vout:          out.OutPoint.Index,
				Value:         uint64(out.Value),
				Address:       r.address,
				Confirmations: confirmations(out.Height, tip),
			})
		}
	}

	log.Debugf("Found %d UTXO(s) across %d address(es) at tip %d",
		len(utxos), len(results), tip)

	return utxos
}
