// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package protocol defines the JSON request and response payloads exchanged
// between a wallet and the bridge inside encrypted events.
//
// Requests and responses are closed sets of variants sharing a single
// envelope field, req_id, which correlates a response with the request that
// produced it.
package protocol

import "encoding/json"

// Request type discriminators.
const (
	TypeLookup      = "lookup"
	TypeBroadcastTx = "broadcast_tx"
	TypeGetFees     = "get_fees"
	TypeGetUtxos    = "get_utxos"

	// TypeLegacyLookup is the discriminator used by older wallet builds
	// for address and xpub lookups.
	TypeLegacyLookup = "bitcoin_lookup"
)

// Request is one of *Lookup, *BroadcastTx, *GetFees or *GetUtxos.
type Request interface {
	// ReqID returns the caller supplied correlation identifier.
	ReqID() string

	// Type returns the request discriminator.
	Type() string

	isRequest()
}

// Lookup asks for the balance and history of an address or of the addresses
// derived from an extended public key.
type Lookup struct {
	ID    string
	Query string

	// Legacy is set for requests sent as bitcoin_lookup. They are
	// answered with a LegacyLookupResult.
	Legacy bool
}

// BroadcastTx asks for a raw, hex encoded transaction to be relayed.
type BroadcastTx struct {
	ID    string
	TxHex string
}

// GetFees asks for fee estimates for the fast, medium and slow tiers.
type GetFees struct {
	ID string
}

// GetUtxos asks for the unspent outputs of a list of addresses.
type GetUtxos struct {
	ID        string
	Addresses []string
}

func (r *Lookup) ReqID() string      { return r.ID }
func (r *BroadcastTx) ReqID() string { return r.ID }
func (r *GetFees) ReqID() string     { return r.ID }
func (r *GetUtxos) ReqID() string    { return r.ID }

func (r *Lookup) Type() string {
	if r.Legacy {
		return TypeLegacyLookup
	}
	return TypeLookup
}

func (*BroadcastTx) Type() string { return TypeBroadcastTx }
func (*GetFees) Type() string     { return TypeGetFees }
func (*GetUtxos) Type() string    { return TypeGetUtxos }

func (*Lookup) isRequest()      {}
func (*BroadcastTx) isRequest() {}
func (*GetFees) isRequest()     {}
func (*GetUtxos) isRequest()    {}

// MarshalJSON implements json.Marshaler.
func (r *Lookup) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		ReqID string `json:"req_id"`
		Query string `json:"query"`
	}{r.Type(), r.ID, r.Query})
}

// MarshalJSON implements json.Marshaler.
func (r *BroadcastTx) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		ReqID string `json:"req_id"`
		TxHex string `json:"tx_hex"`
	}{TypeBroadcastTx, r.ID, r.TxHex})
}

// MarshalJSON implements json.Marshaler.
func (r *GetFees) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		ReqID string `json:"req_id"`
	}{TypeGetFees, r.ID})
}

// MarshalJSON implements json.Marshaler.
func (r *GetUtxos) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string   `json:"type"`
		ReqID     string   `json:"req_id"`
		Addresses []string `json:"addresses"`
	}{TypeGetUtxos, r.ID, r.Addresses})
}
