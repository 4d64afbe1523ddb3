// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"encoding/json"
	"errors"
)

// Response type discriminators.
const (
	TypeLookupResult       = "lookup_result"
	TypeLegacyLookupResult = "bitcoin_lookup_response"
	TypeBroadcastResult    = "broadcast_result"
	TypeFeeEstimate        = "fee_estimate"
	TypeUtxoList           = "utxo_list"
	TypeError              = "error"
)

// CodeMalformedRequest is the error code returned for recognized requests
// whose fields are missing or have the wrong type.
const CodeMalformedRequest = "malformed_request"

// errInconsistentBroadcast is returned when a BroadcastResult violates the
// txid iff success rule. It can only happen through a zero value.
var errInconsistentBroadcast = errors.New("broadcast result: txid must " +
	"be present exactly when the broadcast succeeded")

// Response is one of *LookupResult, *LegacyLookupResult, *BroadcastResult,
// *FeeEstimate, *UtxoList or *ErrorResponse.
type Response interface {
	// ReqID returns the identifier of the request this answers.
	ReqID() string

	// Type returns the response discriminator.
	Type() string

	isResponse()
}

// TxSummary is a single transaction touching a looked up address set.
// Amount is the net effect on the set in satoshis and is negative for
// spends. Timestamp is the block time in unix seconds, 0 while unconfirmed.
type TxSummary struct {
	TxID          string `json:"txid"`
	Height        int32  `json:"height"`
	Confirmations uint32 `json:"confirmations"`
	Amount        int64  `json:"amount"`
	Timestamp     int64  `json:"timestamp"`
}

// LookupData is the result of a successful lookup.
type LookupData struct {
	Query              string      `json:"query"`
	ConfirmedBalance   int64       `json:"confirmed_balance"`
	UnconfirmedBalance int64       `json:"unconfirmed_balance"`
	Transactions       []TxSummary `json:"transactions"`
	AddressesScanned   int         `json:"addresses_scanned"`
}

// LookupResult carries either Data or Err, never both.
type LookupResult struct {
	ID   string
	Data *LookupData
	Err  string
}

// LegacyLookupResult is the lookup answer for bitcoin_lookup requests. It
// carries either Data or Err, never both.
type LegacyLookupResult struct {
	ID   string
	Data *LookupData
	Err  string
}

// BroadcastResult reports the outcome of a broadcast. Use NewBroadcastSuccess
// or NewBroadcastFailure to build one.
type BroadcastResult struct {
	id      string
	success bool
	txid    string
	errMsg  string
}

// NewBroadcastSuccess returns a successful broadcast result for txid.
func NewBroadcastSuccess(reqID, txid string) *BroadcastResult {
	return &BroadcastResult{id: reqID, success: true, txid: txid}
}

// NewBroadcastFailure returns a failed broadcast result.
func NewBroadcastFailure(reqID, reason string) *BroadcastResult {
	return &BroadcastResult{id: reqID, errMsg: reason}
}

// Success reports whether the transaction was accepted by the backend.
func (r *BroadcastResult) Success() bool { return r.success }

// TxID returns the accepted transaction id, if any.
func (r *BroadcastResult) TxID() (string, bool) { return r.txid, r.success }

// Reason returns the failure message of an unsuccessful broadcast.
func (r *BroadcastResult) Reason() string { return r.errMsg }

// FeeTiers holds fee rates in sat/vB for three confirmation targets.
type FeeTiers struct {
	Fast   uint64 `json:"fast"`
	Medium uint64 `json:"medium"`
	Slow   uint64 `json:"slow"`
}

// DefaultFeeTiers are reported whenever live estimates are unavailable.
var DefaultFeeTiers = FeeTiers{Fast: 10, Medium: 5, Slow: 1}

// FeeEstimate reports fee tiers. It never carries an error.
type FeeEstimate struct {
	ID string
	FeeTiers
}

// UtxoInfo is a single unspent output.
type UtxoInfo struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Value         uint64 `json:"value"`
	Address       string `json:"address"`
	Confirmations uint32 `json:"confirmations"`
}

// UtxoList reports the unspent outputs of a set of addresses.
type UtxoList struct {
	ID    string
	Utxos []UtxoInfo
}

// ErrorResponse is returned for requests that could be classified but not
// validated.
type ErrorResponse struct {
	ID      string
	Code    string
	Message string
}

// NewMalformed returns an ErrorResponse with the malformed_request code.
func NewMalformed(reqID, msg string) *ErrorResponse {
	return &ErrorResponse{ID: reqID, Code: CodeMalformedRequest, Message: msg}
}

func (r *LookupResult) ReqID() string       { return r.ID }
func (r *LegacyLookupResult) ReqID() string { return r.ID }
func (r *BroadcastResult) ReqID() string    { return r.id }
func (r *FeeEstimate) ReqID() string        { return r.ID }
func (r *UtxoList) ReqID() string           { return r.ID }
func (r *ErrorResponse) ReqID() string      { return r.ID }

func (*LookupResult) Type() string       { return TypeLookupResult }
func (*LegacyLookupResult) Type() string { return TypeLegacyLookupResult }
func (*BroadcastResult) Type() string    { return TypeBroadcastResult }
func (*FeeEstimate) Type() string        { return TypeFeeEstimate }
func (*UtxoList) Type() string           { return TypeUtxoList }
func (*ErrorResponse) Type() string      { return TypeError }

func (*LookupResult) isResponse()       {}
func (*LegacyLookupResult) isResponse() {}
func (*BroadcastResult) isResponse()    {}
func (*FeeEstimate) isResponse()        {}
func (*UtxoList) isResponse()           {}
func (*ErrorResponse) isResponse()      {}

// MarshalJSON implements json.Marshaler.
func (r *LookupResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string      `json:"type"`
		ReqID string      `json:"req_id"`
		Data  *LookupData `json:"data,omitempty"`
		Error string      `json:"error,omitempty"`
	}{TypeLookupResult, r.ID, r.Data, r.Err})
}

// MarshalJSON implements json.Marshaler. The id is written both as req, which
// older wallet builds read, and as req_id.
func (r *LegacyLookupResult) MarshalJSON() ([]byte, error) {
	type result struct {
		Query              string      `json:"query"`
		ConfirmedBalance   int64       `json:"confirmed_balance"`
		UnconfirmedBalance int64       `json:"unconfirmed_balance"`
		Transactions       []TxSummary `json:"transactions"`
	}

	envelope := struct {
		Type   string  `json:"type"`
		Req    string  `json:"req"`
		ReqID  string  `json:"req_id"`
		Status string  `json:"status"`
		Result *result `json:"result,omitempty"`
		Error  string  `json:"error,omitempty"`
	}{Type: TypeLegacyLookupResult, Req: r.ID, ReqID: r.ID}

	if r.Data == nil {
		envelope.Status = "error"
		envelope.Error = r.Err
		return json.Marshal(envelope)
	}

	txs := r.Data.Transactions
	if txs == nil {
		txs = []TxSummary{}
	}
	envelope.Status = "ok"
	envelope.Result = &result{
		Query:              r.Data.Query,
		ConfirmedBalance:   r.Data.ConfirmedBalance,
		UnconfirmedBalance: r.Data.UnconfirmedBalance,
		Transactions:       txs,
	}

	return json.Marshal(envelope)
}

// MarshalJSON implements json.Marshaler. Both txid and error are always
// present, one of them as null.
func (r *BroadcastResult) MarshalJSON() ([]byte, error) {
	if r.success == (r.txid == "") {
		return nil, errInconsistentBroadcast
	}

	var txid, errMsg *string
	if r.success {
		txid = &r.txid
	} else {
		errMsg = &r.errMsg
	}

	return json.Marshal(struct {
		Type    string  `json:"type"`
		ReqID   string  `json:"req_id"`
		Success bool    `json:"success"`
		TxID    *string `json:"txid"`
		Error   *string `json:"error"`
	}{TypeBroadcastResult, r.id, r.success, txid, errMsg})
}

// MarshalJSON implements json.Marshaler.
func (r *FeeEstimate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		ReqID string `json:"req_id"`
		FeeTiers
	}{TypeFeeEstimate, r.ID, r.FeeTiers})
}

// MarshalJSON implements json.Marshaler. A nil list is encoded as [].
func (r *UtxoList) MarshalJSON() ([]byte, error) {
	utxos := r.Utxos
	if utxos == nil {
		utxos = []UtxoInfo{}
	}

	return json.Marshal(struct {
		Type  string     `json:"type"`
		ReqID string     `json:"req_id"`
		Utxos []UtxoInfo `json:"utxos"`
	}{TypeUtxoList, r.ID, utxos})
}

// MarshalJSON implements json.Marshaler.
func (r *ErrorResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		ReqID string `json:"req_id"`
		Code  string `json:"code"`
		Error string `json:"error"`
	}{TypeError, r.ID, r.Code, r.Message})
}
