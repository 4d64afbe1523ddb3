// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package nostr implements the small part of the Nostr protocol the bridge
// needs: signed events (NIP-01), NIP-44 v2 encryption and a pool of relay
// connections.
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

const (
	// KindRequest is the kind of events carrying wallet requests.
	KindRequest = 30078

	// KindResponse is the kind of events carrying bridge responses.
	KindResponse = 30079
)

var (
	// ErrInvalidID is returned when an event id does not match its
	// content.
	ErrInvalidID = errors.New("event id mismatch")

	// ErrInvalidSignature is returned when an event signature does not
	// verify.
	ErrInvalidSignature = errors.New("invalid event signature")
)

// Tag is a single event tag such as ["p", <pubkey>].
type Tag []string

// Tags is the list of tags of an event.
type Tags []Tag

// Value returns the first value of the first tag named name.
func (t Tags) Value(name string) (string, bool) {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}

	return "", false
}

// Has reports whether a tag named name with the given value exists.
func (t Tags) Has(name, value string) bool {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name && tag[1] == value {
			return true
		}
	}

	return false
}

// Event is a NIP-01 event.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Hash returns the sha256 of the canonical serialization of the event.
func (e *Event) Hash() ([32]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = Tags{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	err := enc.Encode([]interface{}{
		0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content,
	})
	if err != nil {
		return [32]byte{}, err
	}

	// Encode terminates the document with a newline that is not part of
	// the canonical form.
	return sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Sign sets the event's public key, id and signature.
func (e *Event) Sign(key *btcec.PrivateKey) error {
	if e.Tags == nil {
		e.Tags = Tags{}
	}
	e.PubKey = PubKeyHex(key.PubKey())

	hash, err := e.Hash()
	if err != nil {
		return err
	}

	sig, err := schnorr.Sign(key, hash[:])
	if err != nil {
		return err
	}

	e.ID = hex.EncodeToString(hash[:])
	e.Sig = hex.EncodeToString(sig.Serialize())

	return nil
}

// Verify checks the event id and signature.
func (e *Event) Verify() error {
	hash, err := e.Hash()
	if err != nil {
		return err
	}
	if e.ID != hex.EncodeToString(hash[:]) {
		return ErrInvalidID
	}

	pubKey, err := ParsePubKey(e.PubKey)
	if err != nil {
		return err
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if !sig.Verify(hash[:], pubKey) {
		return ErrInvalidSignature
	}

	return nil
}
