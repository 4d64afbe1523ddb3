// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// PubKeyHex returns the x-only hex encoding of key used on the wire.
func PubKeyHex(key *btcec.PublicKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(key))
}

// ParsePubKey parses a 32 byte x-only hex public key.
func ParsePubKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key %q: %w", s, err)
	}

	key, err := schnorr.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("invalid public key %q: %w", s, err)
	}

	return key, nil
}
