// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/katzenpost/qrterminal"
)

// pairingPayload is what a wallet scans to reach the bridge.
type pairingPayload struct {
	PubKey string   `json:"pubkey"`
	Relays []string `json:"relays"`
}

// showPairing writes the pairing payload to w, followed by a QR code of it
// when withQR is set.
func showPairing(w io.Writer, pubKey string, relays []string,
	withQR bool) error {

	payload, err := json.Marshal(pairingPayload{
		PubKey: pubKey,
		Relays: relays,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nPair your wallet with this bridge:\n\n%s\n\n", payload)

	if withQR {
		qrterminal.GenerateWithConfig(string(payload), qrterminal.Config{
			Level:      qrterminal.L,
			Writer:     w,
			HalfBlocks: true,
			QuietZone:  1,
		})
		fmt.Fprintln(w)
	}

	return nil
}
