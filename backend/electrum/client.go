// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package electrum implements backend.Backend on top of the Electrum server
// protocol as spoken by electrs and Fulcrum.
package electrum

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/nostrbridge/backend"
	"github.com/checksum0/go-electrum/electrum"
)

// Config describes how to reach an Electrum server.
type Config struct {
	// Server is the host:port of the server.
	Server string

	// TLS enables a TLS connection to the server.
	TLS bool

	// SkipVerify disables certificate verification. Electrum servers
	// commonly use self-signed certificates.
	SkipVerify bool
}

// Client is a single persistent Electrum connection. A connection the
// library shut down after a transport failure is replaced on the next call.
type Client struct {
	cfg Config

	mu      sync.Mutex
	session *session
}

// A compile-time check to ensure Client satisfies backend.Backend.
var _ backend.Backend = (*Client)(nil)

// New returns a Client for cfg. No connection is made until the first call.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Lookup returns the balance and history of address. Every history entry
// carries the net amount it moved and the time of its block.
func (c *Client) Lookup(ctx context.Context,
	address btcutil.Address) (*backend.AddressHistory, error) {

	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return nil, err
	}
	scriptHash, err := backend.ScriptHash(address)
	if err != nil {
		return nil, err
	}

	s, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := s.node.GetBalance(ctx, scriptHash)
	if err != nil {
		return nil, c.callErr(ctx, s, err)
	}

	history, err := s.node.GetHistory(ctx, scriptHash)
	if err != nil {
		return nil, c.callErr(ctx, s, err)
	}

	result := &backend.AddressHistory{
		Confirmed:    satoshis(balance.Confirmed),
		Unconfirmed:  satoshis(balance.Unconfirmed),
		Transactions: make([]backend.HistoryEntry, 0, len(history)),
	}
	for _, item := range history {
		hash, err := chainhash.NewHashFromStr(item.Hash)
		if err != nil {
			return nil, fmt.Errorf("invalid history txid %q: %w",
				item.Hash, err)
		}

		result.Transactions = append(result.Transactions,
			backend.HistoryEntry{TxID: *hash, Height: item.Height})
	}

	if err := c.annotate(ctx, s, pkScript, result.Transactions); err != nil {
		return nil, err
	}

	return result, nil
}

// annotate fills in the amount and block time of entries. A transaction or
// header the server fails to return leaves the fields zero; only the end of
// ctx aborts.
func (c *Client) annotate(ctx context.Context, s *session, pkScript []byte,
	entries []backend.HistoryEntry) error {

	txs := make(map[chainhash.Hash]*wire.MsgTx, len(entries))
	for _, entry := range entries {
		if _, ok := txs[entry.TxID]; ok {
			continue
		}

		rawHex, err := s.node.GetRawTransaction(ctx, entry.TxID.String())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Warnf("Unable to fetch transaction %v: %v",
				entry.TxID, err)
			continue
		}

		tx, err := decodeTx(rawHex)
		if err != nil {
			log.Warnf("Unable to decode transaction %v: %v",
				entry.TxID, err)
			continue
		}
		txs[entry.TxID] = tx
	}

	headers := make(map[int32]*wire.BlockHeader)
	for i := range entries {
		entry := &entries[i]

		if tx, ok := txs[entry.TxID]; ok {
			entry.Amount = backend.NetAmount(pkScript, tx, txs)
		}

		if entry.Height <= 0 {
			continue
		}

		header, ok := headers[entry.Height]
		if !ok {
			var err error
			header, err = c.blockHeader(ctx, s, entry.Height)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				log.Warnf("Unable to fetch header at height "+
					"%d: %v", entry.Height, err)
			}
			headers[entry.Height] = header
		}

		if header != nil {
			entry.BlockTime = header.Timestamp
		}
	}

	return nil
}

// blockHeader fetches and decodes the header at height.
func (c *Client) blockHeader(ctx context.Context, s *session,
	height int32) (*wire.BlockHeader, error) {

	result, err := s.node.GetBlockHeader(ctx, uint32(height))
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(result.Header)
	if err != nil {
		return nil, err
	}

	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	return &header, nil
}

// BroadcastRaw relays rawTx through the server.
func (c *Client) BroadcastRaw(ctx context.Context,
	rawTx []byte) (*chainhash.Hash, error) {

	s, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	txid, err := s.node.BroadcastTransaction(ctx, hex.EncodeToString(rawTx))
	if err != nil {
		err = c.callErr(ctx, s, err)
		if isTransportErr(ctx, err) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %v", backend.ErrRejected, err)
	}

	return chainhash.NewHashFromStr(txid)
}

// EstimateFee returns the server's fee estimate in BTC/kvB.
func (c *Client) EstimateFee(ctx context.Context,
	targetBlocks uint32) (float64, error) {

	s, err := c.current(ctx)
	if err != nil {
		return 0, err
	}

	rate, err := s.node.GetFee(ctx, targetBlocks)
	if err != nil {
		return 0, c.callErr(ctx, s, err)
	}

	// The server reports -1 when it has not gathered enough data.
	if rate < 0 {
		return 0, backend.ErrNoEstimate
	}

	return float64(rate), nil
}

// ListUnspent returns the unspent outputs paying to address.
func (c *Client) ListUnspent(ctx context.Context,
	address btcutil.Address) ([]backend.Unspent, error) {

	scriptHash, err := backend.ScriptHash(address)
	if err != nil {
		return nil, err
	}

	s, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.node.ListUnspent(ctx, scriptHash)
	if err != nil {
		return nil, c.callErr(ctx, s, err)
	}

	unspent := make([]backend.Unspent, 0, len(items))
	for _, item := range items {
		hash, err := chainhash.NewHashFromStr(item.Hash)
		if err != nil {
			return nil, fmt.Errorf("invalid unspent txid %q: %w",
				item.Hash, err)
		}

		unspent = append(unspent, backend.Unspent{
			OutPoint: *wire.NewOutPoint(hash, item.Position),
			Value:    btcutil.Amount(item.Value),
			Height:   int32(item.Height),
		})
	}

	return unspent, nil
}

// CurrentHeight returns the height of the last header the server announced
// on the connection's header subscription.
func (c *Client) CurrentHeight(ctx context.Context) (int32, error) {
	s, err := c.current(ctx)
	if err != nil {
		return 0, err
	}

	return s.tip.Load(), nil
}

// Close closes the connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.close()
		c.session = nil
	}

	return nil
}

// current returns the live session, connecting first if there is none or
// the library shut the previous one down.
func (c *Client) current(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.node.IsShutdown() {
		log.Debugf("Connection to %s was shut down, reconnecting",
			c.cfg.Server)

		c.session.close()
		c.session = nil
	}

	if c.session == nil {
		s, err := c.connect(ctx)
		if err != nil {
			return nil, err
		}
		c.session = s
	}

	return c.session, nil
}

// connect dials the server, performs the version handshake and subscribes
// to headers. The caller must hold mu.
func (c *Client) connect(ctx context.Context) (*session, error) {
	var (
		node *electrum.Client
		err  error
	)
	if c.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(c.cfg.Server)
		if splitErr != nil {
			host = c.cfg.Server
		}

		node, err = electrum.NewClientSSL(ctx, c.cfg.Server, &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: c.cfg.SkipVerify,
			MinVersion:         tls.VersionTLS12,
		})
	} else {
		node, err = electrum.NewClientTCP(ctx, c.cfg.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w",
			c.cfg.Server, err)
	}

	s := newSession(node, c.cfg.Server)

	serverVersion, protocolVersion, err := node.ServerVersion(ctx)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("version handshake with %s: %w",
			c.cfg.Server, ctxErr(ctx, err))
	}

	headers, err := node.SubscribeHeaders(ctx)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("header subscription with %s: %w",
			c.cfg.Server, ctxErr(ctx, err))
	}

	select {
	case header, ok := <-headers:
		if ok && header != nil {
			s.tip.Store(header.Height)
		}

	case <-ctx.Done():
		s.close()
		return nil, ctx.Err()
	}

	go s.trackTip(headers)

	log.Infof("Connected to Electrum server %s (%s, protocol %s) at "+
		"height %d", c.cfg.Server, serverVersion, protocolVersion,
		s.tip.Load())

	return s, nil
}

// callErr normalizes an error returned by the library. A call that ran out
// of time reports the context error; a shut down connection is dropped so
// the next call reconnects.
func (c *Client) callErr(ctx context.Context, s *session, err error) error {
	if errors.Is(err, electrum.ErrServerShutdown) || s.node.IsShutdown() {
		c.mu.Lock()
		if c.session == s {
			c.session.close()
			c.session = nil
		}
		c.mu.Unlock()
	}

	return ctxErr(ctx, err)
}

// isTransportErr reports whether err came from the connection rather than
// from the server's answer.
func isTransportErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, electrum.ErrServerShutdown)
}

// session is one connection to the server together with the chain tip it
// announced last.
type session struct {
	node   *electrum.Client
	server string
	tip    atomic.Int32

	once sync.Once
	quit chan struct{}
}

func newSession(node *electrum.Client, server string) *session {
	s := &session{
		node:   node,
		server: server,
		quit:   make(chan struct{}),
	}
	go s.watchErrors()

	return s
}

// watchErrors drains the library's error channel, which it writes to before
// shutting a failed connection down.
func (s *session) watchErrors() {
	select {
	case err := <-s.node.Error:
		log.Debugf("Connection to %s failed: %v", s.server, err)

	case <-s.quit:
	}
}

// trackTip follows header notifications until the session closes.
func (s *session) trackTip(headers <-chan *electrum.SubscribeHeadersResult) {
	for {
		select {
		case header, ok := <-headers:
			if !ok {
				return
			}
			if header == nil {
				continue
			}

			log.Debugf("New tip at height %d", header.Height)
			s.tip.Store(header.Height)

		case <-s.quit:
			return
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.quit)
		s.node.Shutdown()
	})
}

// decodeTx parses a hex encoded transaction.
func decodeTx(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	return &tx, nil
}

// satoshis converts a balance reported by the library.
func satoshis(v float64) btcutil.Amount {
	return btcutil.Amount(math.Round(v))
}

// ctxErr prefers the context error over the error it caused.
func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return err
}
