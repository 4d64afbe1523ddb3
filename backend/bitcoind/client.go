// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bitcoind implements backend.Backend on top of the Bitcoin Core
// JSON-RPC interface.
//
// Bitcoin Core keeps no address index, so address queries are answered with
// scantxoutset against the UTXO set. Lookups therefore only see transactions
// that still have unspent outputs paying to the address.
package bitcoind

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/nostrbridge/backend"
)

// Config contains the parameters required to reach bitcoind's RPC server.
type Config struct {
	// ChainParams are the parameters of the network bitcoind must be
	// running on.
	ChainParams *chaincfg.Params

	// Host is the host:port of the RPC server.
	Host string

	// User is the RPC username.
	User string

	// Pass is the RPC password.
	Pass string
}

// Client talks to bitcoind over HTTP POST JSON-RPC.
type Client struct {
	cfg    Config
	client *rpcclient.Client

	// scanAbandoned is set when a scan was given up on before bitcoind
	// answered. The next scan aborts it first, while holding the gate.
	scanAbandoned atomic.Bool
}

// A compile-time check to ensure Client satisfies backend.Backend.
var _ backend.Backend = (*Client)(nil)

// New returns a Client for cfg. No request is made until the first call.
func New(cfg *Config) (*Client, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:                 cfg.Host,
		User:                 cfg.User,
		Pass:                 cfg.Pass,
		DisableAutoReconnect: false,
		DisableConnectOnNew:  true,
		DisableTLS:           true,
		HTTPPostMode:         true,
	}, nil)
	if err != nil {
		return nil, err
	}

	return &Client{cfg: *cfg, client: client}, nil
}

// VerifyNetwork checks that bitcoind runs on the configured network by
// comparing genesis block hashes.
func (c *Client) VerifyNetwork(ctx context.Context) error {
	hash, err := withCancel(ctx, func() (*chainhash.Hash, error) {
		return c.client.GetBlockHash(0)
	})
	if err != nil {
		return err
	}

	if !hash.IsEqual(c.cfg.ChainParams.GenesisHash) {
		return fmt.Errorf("bitcoind genesis %v does not match %s "+
			"genesis %v", hash, c.cfg.ChainParams.Name,
			c.cfg.ChainParams.GenesisHash)
	}

	return nil
}

// Lookup returns the balance of address and the transactions that created
// its unspent outputs. The amount of each transaction is the value of its
// unspent outputs paying to address.
func (c *Client) Lookup(ctx context.Context,
	address btcutil.Address) (*backend.AddressHistory, error) {

	scan, err := c.scan(ctx, address)
	if err != nil {
		return nil, err
	}

	history := &backend.AddressHistory{
		Transactions: make([]backend.HistoryEntry, 0, len(scan.Unspents)),
	}

	index := make(map[chainhash.Hash]int, len(scan.Unspents))
	for _, u := range scan.Unspents {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, err
		}

		amt, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, err
		}
		history.Confirmed += amt

		if i, ok := index[*hash]; ok {
			history.Transactions[i].Amount += amt
			continue
		}
		index[*hash] = len(history.Transactions)

		history.Transactions = append(history.Transactions,
			backend.HistoryEntry{
				TxID:   *hash,
				Height: u.Height,
				Amount: amt,
			})
	}

	times := make(map[int32]time.Time)
	for i := range history.Transactions {
		entry := &history.Transactions[i]
		if entry.Height <= 0 {
			continue
		}

		blockTime, ok := times[entry.Height]
		if !ok {
			blockTime, err = c.blockTime(ctx, entry.Height)
			switch {
			case ctx.Err() != nil:
				return nil, ctx.Err()

			case err != nil:
				log.Warnf("Unable to fetch block %d: %v",
					entry.Height, err)
			}
			times[entry.Height] = blockTime
		}
		entry.BlockTime = blockTime
	}

	return history, nil
}

// blockTime returns the header timestamp of the block at height.
func (c *Client) blockTime(ctx context.Context,
	height int32) (time.Time, error) {

	header, err := withCancel(ctx, func() (*wire.BlockHeader, error) {
		hash, err := c.client.GetBlockHash(int64(height))
		if err != nil {
			return nil, err
		}

		return c.client.GetBlockHeader(hash)
	})
	if err != nil {
		return time.Time{}, err
	}

	return header.Timestamp, nil
}

// BroadcastRaw relays rawTx with sendrawtransaction.
func (c *Client) BroadcastRaw(ctx context.Context,
	rawTx []byte) (*chainhash.Hash, error) {

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, err
	}

	txid, err := withCancel(ctx, func() (*chainhash.Hash, error) {
		return c.client.SendRawTransaction(&tx, false)
	})

	var rpcErr *btcjson.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return nil, fmt.Errorf("%w: %s", backend.ErrRejected,
			rpcErr.Message)

	case err != nil:
		return nil, err
	}

	return txid, nil
}

// EstimateFee returns estimatesmartfee's rate in BTC/kvB.
func (c *Client) EstimateFee(ctx context.Context,
	targetBlocks uint32) (float64, error) {

	result, err := withCancel(ctx,
		func() (*btcjson.EstimateSmartFeeResult, error) {
			return c.client.EstimateSmartFee(
				int64(targetBlocks), &btcjson.EstimateModeConservative,
			)
		},
	)
	if err != nil {
		return 0, err
	}

	if result.FeeRate == nil {
		if len(result.Errors) > 0 {
			return 0, fmt.Errorf("%w: %v", backend.ErrNoEstimate,
				result.Errors)
		}

		return 0, backend.ErrNoEstimate
	}

	return *result.FeeRate, nil
}

// ListUnspent returns the outputs paying to address found in the UTXO set.
func (c *Client) ListUnspent(ctx context.Context,
	address btcutil.Address) ([]backend.Unspent, error) {

	scan, err := c.scan(ctx, address)
	if err != nil {
		return nil, err
	}

	unspent := make([]backend.Unspent, 0, len(scan.Unspents))
	for _, u := range scan.Unspents {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, err
		}

		amt, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, err
		}

		unspent = append(unspent, backend.Unspent{
			OutPoint: *wire.NewOutPoint(hash, u.Vout),
			Value:    amt,
			Height:   u.Height,
		})
	}

	return unspent, nil
}

// CurrentHeight returns getblockcount.
func (c *Client) CurrentHeight(ctx context.Context) (int32, error) {
	height, err := withCancel(ctx, c.client.GetBlockCount)
	if err != nil {
		return 0, err
	}

	return int32(height), nil
}

// Close shuts the RPC client down.
func (c *Client) Close() error {
	c.client.Shutdown()
	return nil
}

// scanResult is the reply of scantxoutset start.
type scanResult struct {
	Success  bool  `json:"success"`
	Height   int32 `json:"height"`
	Unspents []struct {
		TxID   string  `json:"txid"`
		Vout   uint32  `json:"vout"`
		Amount float64 `json:"amount"`
		Height int32   `json:"height"`
	} `json:"unspents"`
}

// scan runs scantxoutset for a single address. A scan abandoned because ctx
// ended keeps running on the node; it is aborted at the start of the next
// scan so every request to bitcoind goes through an admitted call.
func (c *Client) scan(ctx context.Context,
	address btcutil.Address) (*scanResult, error) {

	if c.scanAbandoned.Swap(false) {
		c.abortScan(ctx)
	}

	params := []json.RawMessage{
		json.RawMessage(`"start"`),
		mustMarshal([]string{
			fmt.Sprintf("addr(%s)", address.EncodeAddress()),
		}),
	}

	raw, err := withCancel(ctx, func() (json.RawMessage, error) {
		return c.client.RawRequest("scantxoutset", params)
	})
	if err != nil {
		if ctx.Err() != nil {
			c.scanAbandoned.Store(true)
		}

		return nil, err
	}

	var result scanResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unexpected scantxoutset reply: %w",
			err)
	}
	if !result.Success {
		return nil, errors.New("scantxoutset did not complete")
	}

	return &result, nil
}

// abortScan asks bitcoind to stop a scan left running by an earlier call.
// bitcoind runs one scan at a time, so a new scan started before the old one
// finishes would be refused.
func (c *Client) abortScan(ctx context.Context) {
	_, err := withCancel(ctx, func() (json.RawMessage, error) {
		return c.client.RawRequest(
			"scantxoutset", []json.RawMessage{
				json.RawMessage(`"abort"`),
			},
		)
	})
	if err != nil {
		log.Debugf("Unable to abort scantxoutset: %v", err)
	}
}

// withCancel makes a blocking rpcclient call cancelable. The call keeps
// running on the node after ctx ends, only its result is discarded.
func withCancel[T any](ctx context.Context, fetch func() (T, error)) (T,
	error) {

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fetch()
		done <- result{value, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err

	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return b
}
