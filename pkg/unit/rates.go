// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides a set of types for dealing with bitcoin fee rate
// units.
package unit

import (
	"errors"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// VBytesPerKVByte is the number of virtual bytes in a kilo-vbyte.
	VBytesPerKVByte = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string.
	floatStringPrecision = 2
)

var (
	// ErrInvalidFeeRate is returned when a backend reports a fee rate that
	// is negative, NaN or infinite. Electrum servers report -1 when they
	// have no estimate for a target.
	ErrInvalidFeeRate = errors.New("invalid fee rate")
)

// BTCPerKVByte is a fee rate in BTC/kvB, the unit used by bitcoind's
// estimatesmartfee and by Electrum's blockchain.estimatefee.
type BTCPerKVByte struct {
	btcutil.Amount
}

// NewBTCPerKVByte converts a floating point BTC/kvB rate reported by a backend
// to a BTCPerKVByte. The value is rounded to whole satoshis per kvB.
func NewBTCPerKVByte(rate float64) (BTCPerKVByte, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return BTCPerKVByte{}, ErrInvalidFeeRate
	}

	amt, err := btcutil.NewAmount(rate)
	if err != nil {
		return BTCPerKVByte{}, err
	}

	return BTCPerKVByte{amt}, nil
}

// FeePerVByte converts the fee rate from BTC/kvB to sat/vB. One BTC/kvB is
// 100,000 sat/vB.
func (b BTCPerKVByte) FeePerVByte() SatPerVByte {
	return SatPerVByte{big.NewRat(int64(b.Amount), VBytesPerKVByte)}
}

// SatPerVByte represents a fee rate in sat/vbyte. The fee rate is encoded
// as a big.Rat to allow for fractional (sub-satoshi) fee rates.
type SatPerVByte struct {
	*big.Rat
}

// NewSatPerVByte creates a fee rate of the given whole sat/vB.
func NewSatPerVByte(rate uint64) SatPerVByte {
	return SatPerVByte{new(big.Rat).SetUint64(rate)}
}

// FeePerKVByte converts the current fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() btcutil.Amount {
	kvbRate := new(big.Rat).Mul(s.Rat, big.NewRat(VBytesPerKVByte, 1))

	return roundToAmount(kvbRate)
}

// Round returns the fee rate rounded to the nearest whole sat/vB, with halves
// rounded away from zero.
func (s SatPerVByte) Round() uint64 {
	return uint64(roundToAmount(s.Rat))
}

// Clamp returns the fee rate rounded to whole sat/vB and raised to floor when
// it falls below it. Rates below one sat/vB are never rounded down to zero
// when floor is at least one.
func (s SatPerVByte) Clamp(floor SatPerVByte) uint64 {
	if s.LessThan(floor) {
		return floor.Round()
	}

	rounded := s.Round()
	if rounded < floor.Round() {
		return floor.Round()
	}

	return rounded
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return s.FloatString(floatStringPrecision) + " sat/vb"
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.Cmp(other.Rat) == 0
}

// LessThan returns true if the fee rate is less than the other fee rate.
func (s SatPerVByte) LessThan(other SatPerVByte) bool {
	return s.Cmp(other.Rat) < 0
}

// FloorFromRelayFee returns the sat/vB fee rate corresponding to a relay fee
// expressed in sat/kvB.
func FloorFromRelayFee(relayFeePerKb btcutil.Amount) SatPerVByte {
	return SatPerVByte{big.NewRat(int64(relayFeePerKb), VBytesPerKVByte)}
}

// roundToAmount rounds a big.Rat to the nearest btcutil.Amount (int64),
// with halves rounded away from zero. For example, 2.4 rounds to 2, 2.5
// rounds to 3, and -2.5 rounds to -3.
func roundToAmount(r *big.Rat) btcutil.Amount {
	f, _ := r.Float64()

	return btcutil.Amount(math.Round(f))
}
