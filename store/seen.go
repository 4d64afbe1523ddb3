// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
)

// MarkSeen records that the event with the given hex id was processed and
// reports whether this is the first time it was seen.
func (s *Store) MarkSeen(eventID string) (bool, error) {
	key, err := hex.DecodeString(eventID)
	if err != nil || len(key) != 32 {
		return false, fmt.Errorf("invalid event id %q", eventID)
	}

	var fresh bool
	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(seenBucketName)
		if bucket.Get(key) != nil {
			return nil
		}
		fresh = true

		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(s.clock.Now().Unix()))

		return bucket.Put(key, v[:])
	})
	if err != nil {
		return false, err
	}

	return fresh, nil
}

// PruneSeen forgets event ids recorded more than twice the event age limit
// ago. Relays never deliver events that old again because subscriptions
// are bounded by the age limit. It returns the number of ids removed.
func (s *Store) PruneSeen() (int, error) {
	cutoff := s.clock.Now().Add(-2 * s.maxAge).Unix()

	var removed int
	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(seenBucketName)

		// Keys are collected first since the bucket must not be
		// modified while iterating.
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if len(v) != 8 ||
				int64(binary.BigEndian.Uint64(v)) < cutoff {

				expired = append(expired, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)

		return nil
	})

	return removed, err
}
