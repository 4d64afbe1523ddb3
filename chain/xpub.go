// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// addrType is the output type implied by an extended key's version bytes.
type addrType uint8

const (
	addrP2PKH addrType = iota
	addrNestedP2WPKH
	addrP2WPKH
)

// keyVersion describes a known extended public key version.
type keyVersion struct {
	version [4]byte
	mainnet bool
	kind    addrType
}

// keyVersions lists the SLIP-0132 public key versions we accept.
var keyVersions = []keyVersion{
	{[4]byte{0x04, 0x88, 0xb2, 0x1e}, true, addrP2PKH},         // xpub
	{[4]byte{0x04, 0x9d, 0x7c, 0xb2}, true, addrNestedP2WPKH},  // ypub
	{[4]byte{0x04, 0xb2, 0x47, 0x46}, true, addrP2WPKH},        // zpub
	{[4]byte{0x04, 0x35, 0x87, 0xcf}, false, addrP2PKH},        // tpub
	{[4]byte{0x04, 0x4a, 0x52, 0x62}, false, addrNestedP2WPKH}, // upub
	{[4]byte{0x04, 0x5f, 0x1c, 0xf6}, false, addrP2WPKH},       // vpub
}

var errPrivateKey = errors.New("extended private keys are not accepted")

// parseQuery resolves a lookup query into the addresses to scan.
func parseQuery(query string, params *chaincfg.Params) ([]btcutil.Address,
	error) {

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}

	addr, addrErr := btcutil.DecodeAddress(query, params)
	if addrErr == nil {
		if !addr.IsForNet(params) {
			return nil, fmt.Errorf("%w: address is not for %s",
				ErrInvalidQuery, params.Name)
		}

		return []btcutil.Address{addr}, nil
	}

	key, err := hdkeychain.NewKeyFromString(query)
	if err != nil {
		return nil, fmt.Errorf("%w: not an address (%v) or extended "+
			"key (%v)", ErrInvalidQuery, addrErr, err)
	}

	addrs, err := deriveAddresses(key, params, GapLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	return addrs, nil
}

// deriveAddresses derives count receive addresses followed by count change
// addresses from an account level extended public key.
func deriveAddresses(key *hdkeychain.ExtendedKey, params *chaincfg.Params,
	count uint32) ([]btcutil.Address, error) {

	if key.IsPrivate() {
		return nil, errPrivateKey
	}

	kind, err := versionType(key.Version(), params)
	if err != nil {
		return nil, err
	}

	addrs := make([]btcutil.Address, 0, 2*count)
	for _, branch := range []uint32{0, 1} {
		branchKey, err := key.Derive(branch)
		if err != nil {
			return nil, err
		}

		for i := uint32(0); i < count; i++ {
			child, err := branchKey.Derive(i)
			if errors.Is(err, hdkeychain.ErrInvalidChild) {
				continue
			}
			if err != nil {
				return nil, err
			}

			addr, err := childAddress(child, kind, params)
			if err != nil {
				return nil, err
			}
			addrs = append(addrs, addr)
		}
	}

	return addrs, nil
}

// versionType maps version bytes to an address type, checking the key
// belongs to the active network.
func versionType(version []byte, params *chaincfg.Params) (addrType, error) {
	mainnet := params.Net == wire.MainNet

	for _, v := range keyVersions {
		if !bytes.Equal(v.version[:], version) {
			continue
		}
		if v.mainnet != mainnet {
			return 0, fmt.Errorf("extended key is not for %s",
				params.Name)
		}

		return v.kind, nil
	}

	return 0, fmt.Errorf("unknown extended key version %x", version)
}

// childAddress returns the address of kind paying to child's public key.
func childAddress(child *hdkeychain.ExtendedKey, kind addrType,
	params *chaincfg.Params) (btcutil.Address, error) {

	pubKey, err := child.ECPubKey()
	if err != nil {
		return nil, err
	}
	keyHash := btcutil.Hash160(pubKey.SerializeCompressed())

	switch kind {
	case addrP2PKH:
		return btcutil.NewAddressPubKeyHash(keyHash, params)

	case addrP2WPKH:
		return btcutil.NewAddressWitnessPubKeyHash(keyHash, params)

	default:
		witnessAddr, err := btcutil.NewAddressWitnessPubKeyHash(
			keyHash, params,
		)
		if err != nil {
			return nil, err
		}

		redeemScript, err := txscript.PayToAddrScript(witnessAddr)
		if err != nil {
			return nil, err
		}

		return btcutil.NewAddressScriptHash(redeemScript, params)
	}
}
