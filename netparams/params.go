// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams pairs each supported bitcoin network with the default
// ports of the backends the bridge can talk to.
package netparams

import "github.com/btcsuite/btcd/chaincfg"

// Params groups the chain parameters of a network with its backend ports.
type Params struct {
	*chaincfg.Params

	// ElectrumPort is the default plaintext Electrum port.
	ElectrumPort string

	// ElectrumTLSPort is the default Electrum port when TLS is enabled.
	ElectrumTLSPort string

	// BitcoindRPCPort is the default Bitcoin Core JSON-RPC port.
	BitcoindRPCPort string
}

// ElectrumDefaultPort returns the Electrum port to use with or without TLS.
func (p *Params) ElectrumDefaultPort(tls bool) string {
	if tls {
		return p.ElectrumTLSPort
	}
	return p.ElectrumPort
}

// MainNetParams contains the parameters of the main network.
var MainNetParams = Params{
	Params:          &chaincfg.MainNetParams,
	ElectrumPort:    "50001",
	ElectrumTLSPort: "50002",
	BitcoindRPCPort: "8332",
}

// TestNet3Params contains the parameters of the test network (version 3).
var TestNet3Params = Params{
	Params:          &chaincfg.TestNet3Params,
	ElectrumPort:    "60001",
	ElectrumTLSPort: "60002",
	BitcoindRPCPort: "18332",
}

// TestNet4Params contains the parameters of the test network (version 4).
var TestNet4Params = Params{
	Params:          &TestNet4ChainParams,
	ElectrumPort:    "40001",
	ElectrumTLSPort: "40002",
	BitcoindRPCPort: "48332",
}

// SigNetParams contains the parameters of the default signet.
var SigNetParams = Params{
	Params:          &chaincfg.SigNetParams,
	ElectrumPort:    "60601",
	ElectrumTLSPort: "60602",
	BitcoindRPCPort: "38332",
}

// RegressionNetParams contains the parameters of the regression test
// network.
var RegressionNetParams = Params{
	Params:          &chaincfg.RegressionNetParams,
	ElectrumPort:    "60401",
	ElectrumTLSPort: "60402",
	BitcoindRPCPort: "18443",
}

// SimNetParams contains the parameters of the btcd simulation network.
var SimNetParams = Params{
	Params:          &chaincfg.SimNetParams,
	ElectrumPort:    "60401",
	ElectrumTLSPort: "60402",
	BitcoindRPCPort: "18556",
}
