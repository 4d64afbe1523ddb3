// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	typePairedAt tlv.Type = 1
	typeLastSeen tlv.Type = 2
)

// Pairing records a wallet that announced itself to the bridge.
type Pairing struct {
	// PubKey is the wallet's x-only public key in hex.
	PubKey string

	// PairedAt is when the wallet first paired.
	PairedAt time.Time

	// LastSeen is when the wallet last sent a request.
	LastSeen time.Time
}

// pairingKey decodes a hex x-only public key into a bucket key.
func pairingKey(pubKey string) ([]byte, error) {
	key, err := hex.DecodeString(pubKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("invalid wallet public key %q", pubKey)
	}

	return key, nil
}

func encodePairing(p *Pairing) ([]byte, error) {
	pairedAt := uint64(p.PairedAt.Unix())
	lastSeen := uint64(p.LastSeen.Unix())

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typePairedAt, &pairedAt),
		tlv.MakePrimitiveRecord(typeLastSeen, &lastSeen),
	)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodePairing(key, v []byte) (*Pairing, error) {
	var pairedAt, lastSeen uint64

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typePairedAt, &pairedAt),
		tlv.MakePrimitiveRecord(typeLastSeen, &lastSeen),
	)
	if err != nil {
		return nil, err
	}

	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(v))
	if err != nil {
		return nil, err
	}
	if _, ok := parsed[typePairedAt]; !ok {
		return nil, fmt.Errorf("pairing %x lacks paired-at", key)
	}

	return &Pairing{
		PubKey:   hex.EncodeToString(key),
		PairedAt: time.Unix(int64(pairedAt), 0),
		LastSeen: time.Unix(int64(lastSeen), 0),
	}, nil
}

// RecordPairing stores a pairing for pubKey. Pairing again keeps the
// original paired-at time.
func (s *Store) RecordPairing(pubKey string) (*Pairing, error) {
	key, err := pairingKey(pubKey)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	var p *Pairing
	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(pairingBucketName)

		p = &Pairing{PubKey: pubKey, PairedAt: now}
		if v := bucket.Get(key); v != nil {
			existing, err := decodePairing(key, v)
			if err != nil {
				return err
			}
			p = existing
		}
		p.LastSeen = now

		encoded, err := encodePairing(p)
		if err != nil {
			return err
		}

		return bucket.Put(key, encoded)
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// TouchPairing refreshes the last-seen time of a paired wallet. Unknown
// wallets are left alone.
func (s *Store) TouchPairing(pubKey string) error {
	key, err := pairingKey(pubKey)
	if err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(pairingBucketName)

		v := bucket.Get(key)
		if v == nil {
			return nil
		}

		p, err := decodePairing(key, v)
		if err != nil {
			return err
		}
		p.LastSeen = s.clock.Now()

		encoded, err := encodePairing(p)
		if err != nil {
			return err
		}

		return bucket.Put(key, encoded)
	})
}

// FetchPairing returns the pairing of pubKey or ErrNotFound.
func (s *Store) FetchPairing(pubKey string) (*Pairing, error) {
	key, err := pairingKey(pubKey)
	if err != nil {
		return nil, err
	}

	var p *Pairing
	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		v := tx.ReadBucket(pairingBucketName).Get(key)
		if v == nil {
			return ErrNotFound
		}

		p, err = decodePairing(key, v)
		return err
	})

	return p, err
}

// Pairings returns every pairing, most recently seen first.
func (s *Store) Pairings() ([]*Pairing, error) {
	var pairings []*Pairing
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(pairingBucketName)

		return bucket.ForEach(func(k, v []byte) error {
			p, err := decodePairing(k, v)
			if err != nil {
				return err
			}
			pairings = append(pairings, p)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pairings, func(i, j int) bool {
		return pairings[i].LastSeen.After(pairings[j].LastSeen)
	})

	return pairings, nil
}
