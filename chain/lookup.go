// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/nostrbridge/backend"
	"github.com/btcsuite/nostrbridge/protocol"
	"github.com/davecgh/go-spew/spew"
)

// Lookup returns the combined balance and history of query, which is either
// a single address or an extended public key. Every address is a separate
// gated backend call. Any failure aborts the lookup and is returned.
func (c *Client) Lookup(ctx context.Context,
	query string) (*protocol.LookupData, error) {

	addrs, err := parseQuery(query, c.cfg.ChainParams)
	if err != nil {
		return nil, err
	}

	log.Debugf("Looking up %d address(es) for query %s", len(addrs),
		query)

	var (
		confirmed   btcutil.Amount
		unconfirmed btcutil.Amount
		seen        = make(map[chainhash.Hash]*txTotals)
	)
	for _, addr := range addrs {
		addr := addr

		history, err := call(ctx, c, opLookup, c.cfg.Timeouts.Lookup,
			func(ctx context.Context) (*backend.AddressHistory,
				error) {

				return c.cfg.Backend.Lookup(ctx, addr)
			},
		)
		if err != nil {
			return nil, err
		}

		confirmed += history.Confirmed
		unconfirmed += history.Unconfirmed

		for _, entry := range history.Transactions {
			seen[entry.TxID] = seen[entry.TxID].add(entry)
		}
	}

	// The tip is sampled after the scans so no item can be reported
	// above it.
	tip, err := call(ctx, c, opLookup, c.cfg.Timeouts.Lookup,
		c.cfg.Backend.CurrentHeight,
	)
	if err != nil {
		return nil, err
	}

	data := &protocol.LookupData{
		Query:              query,
		ConfirmedBalance:   int64(confirmed),
		UnconfirmedBalance: int64(unconfirmed),
		Transactions:       make([]protocol.TxSummary, 0, len(seen)),
		AddressesScanned:   len(addrs),
	}
	for txid, totals := range seen {
		var timestamp int64
		if !totals.blockTime.IsZero() {
			timestamp = totals.blockTime.Unix()
		}

		data.Transactions = append(data.Transactions,
			protocol.TxSummary{
				TxID:          txid.String(),
				Height:        totals.height,
				Confirmations: confirmations(totals.height, tip),
				Amount:        int64(totals.amount),
				Timestamp:     timestamp,
			})
	}
	sortHistory(data.Transactions)

	log.Tracef("Lookup result: %v", newLogClosure(func() string {
		return spew.Sdump(data)
	}))

	return data, nil
}

// txTotals merges the entries of one transaction seen through several
// addresses of the same query.
type txTotals struct {
	height    int32
	amount    btcutil.Amount
	blockTime time.Time
}

// add folds entry into t, allocating t on first use. The confirmed height
// wins over a mempool one and amounts are summed.
func (t *txTotals) add(entry backend.HistoryEntry) *txTotals {
	if t == nil {
		t = &txTotals{height: entry.Height}
	}
	if t.height <= 0 {
		t.height = entry.Height
	}
	if t.blockTime.IsZero() {
		t.blockTime = entry.BlockTime
	}
	t.amount += entry.Amount

	return t
}

// sortHistory orders mempool transactions first, then by height descending.
func sortHistory(txs []protocol.TxSummary) {
	sort.Slice(txs, func(i, j int) bool {
		hi, hj := txs[i].Height, txs[j].Height

		pendingI, pendingJ := hi <= 0, hj <= 0
		switch {
		case pendingI != pendingJ:
			return pendingI

		case hi != hj:
			return hi > hj

		default:
			return txs[i].TxID < txs[j].TxID
		}
	})
}
