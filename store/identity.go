// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/nostrbridge/internal/zero"
)

// Identity returns the bridge's secp256k1 identity key. A fresh key is
// generated and persisted the first time it is requested.
func (s *Store) Identity() (*btcec.PrivateKey, error) {
	var secret [32]byte
	defer zero.Bytea32(&secret)

	err := walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(identityBucketName)

		if v := bucket.Get(secretKeyName); v != nil {
			if len(v) != len(secret) {
				return fmt.Errorf("identity key has invalid "+
					"length %d", len(v))
			}
			copy(secret[:], v)

			return nil
		}

		key, err := btcec.NewPrivateKey()
		if err != nil {
			return err
		}
		key.Key.PutBytes(&secret)
		key.Zero()

		log.Infof("Generated new bridge identity")

		return bucket.Put(secretKeyName, secret[:])
	})
	if err != nil {
		return nil, err
	}

	key, _ := btcec.PrivKeyFromBytes(secret[:])

	return key, nil
}
