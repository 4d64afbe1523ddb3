// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/nostrbridge/protocol"
)

var (
	// ErrUnrecognizedRequest is returned for payloads that are not JSON
	// objects or whose type is missing or unknown. No response is sent
	// for them.
	ErrUnrecognizedRequest = errors.New("unrecognized request")
)

// MalformedError is returned by Parse for requests of a known type whose
// fields are missing or have the wrong type.
type MalformedError struct {
	// ReqID is the request id, empty if it could not be read.
	ReqID string

	// Reason describes the first problem found.
	Reason string
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return "malformed request: " + e.Reason
}

// envelope is the untyped view of a request used for validation.
type envelope map[string]json.RawMessage

// str reads a string field. ok is false if the field is absent; err is set
// if it is present with another type.
func (e envelope) str(field string) (value string, ok bool, err error) {
	raw, ok := e[field]
	if !ok || string(raw) == "null" {
		return "", false, nil
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return "", true, fmt.Errorf("field %s must be a string", field)
	}

	return value, true, nil
}

// requiredStr reads a non-empty string field.
func (e envelope) requiredStr(field string) (string, error) {
	value, ok, err := e.str(field)
	switch {
	case err != nil:
		return "", err

	case !ok || strings.TrimSpace(value) == "":
		return "", fmt.Errorf("missing %s", field)
	}

	return value, nil
}

// Parse classifies and validates a decrypted payload. fallbackReqID is used
// when the payload carries no req_id of its own.
//
// The returned error is ErrUnrecognizedRequest or a *MalformedError.
func Parse(payload []byte, fallbackReqID string) (protocol.Request, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env == nil {
		return nil, ErrUnrecognizedRequest
	}

	reqType, _, err := env.str("type")
	if err != nil {
		return nil, ErrUnrecognizedRequest
	}

	switch reqType {
	case protocol.TypeLookup, protocol.TypeLegacyLookup,
		protocol.TypeBroadcastTx, protocol.TypeGetFees,
		protocol.TypeGetUtxos:

	default:
		return nil, ErrUnrecognizedRequest
	}

	reqID, present, err := env.str("req_id")
	if err != nil {
		return nil, &MalformedError{Reason: err.Error()}
	}
	if !present {
		reqID = fallbackReqID
	}
	if reqID == "" {
		return nil, &MalformedError{Reason: "missing req_id"}
	}

	malformed := func(err error) error {
		return &MalformedError{ReqID: reqID, Reason: err.Error()}
	}

	switch reqType {
	case protocol.TypeLookup, protocol.TypeLegacyLookup:
		query, err := env.requiredStr("query")
		if err != nil {
			return nil, malformed(err)
		}

		return &protocol.Lookup{
			ID:     reqID,
			Query:  query,
			Legacy: reqType == protocol.TypeLegacyLookup,
		}, nil

	case protocol.TypeBroadcastTx:
		txHex, err := env.requiredStr("tx_hex")
		if err != nil {
			return nil, malformed(err)
		}

		return &protocol.BroadcastTx{ID: reqID, TxHex: txHex}, nil

	case protocol.TypeGetFees:
		return &protocol.GetFees{ID: reqID}, nil

	default:
		raw, ok := env["addresses"]
		if !ok || string(raw) == "null" {
			return nil, malformed(errors.New("missing addresses"))
		}

		addresses, err := parseAddresses(raw)
		if err != nil {
			return nil, malformed(err)
		}

		return &protocol.GetUtxos{ID: reqID, Addresses: addresses}, nil
	}
}

// parseAddresses reads a non-empty list of non-blank strings. Entries are
// decoded as pointers so JSON nulls are told apart from strings.
func parseAddresses(raw json.RawMessage) ([]string, error) {
	var entries []*string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.New("addresses must be a list of strings")
	}
	if len(entries) == 0 {
		return nil, errors.New("addresses is empty")
	}

	addresses := make([]string, 0, len(entries))
	for i, entry := range entries {
		switch {
		case entry == nil:
			return nil, fmt.Errorf("addresses[%d] is null", i)

		case strings.TrimSpace(*entry) == "":
			return nil, fmt.Errorf("addresses[%d] is blank", i)
		}

		addresses = append(addresses, *entry)
	}

	return addresses, nil
}
