// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"

	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/nostrbridge/pkg/unit"
	"github.com/btcsuite/nostrbridge/protocol"
)

// feeTargets are the confirmation targets, in blocks, of the fast, medium
// and slow tiers.
var feeTargets = [3]uint32{1, 6, 12}

// minFeeRate is the lowest rate ever reported, derived from the default
// relay fee.
var minFeeRate = unit.FloorFromRelayFee(txrules.DefaultRelayFeePerKb)

// FeeEstimates returns live fee rates in sat/vB for the three tiers. If any
// estimate cannot be obtained the default tiers are returned instead, so the
// wallet never sees a mix of live and default values.
func (c *Client) FeeEstimates(ctx context.Context) protocol.FeeTiers {
	var rates [3]uint64
	for i, target := range feeTargets {
		rate, err := c.estimateFee(ctx, target)
		if err != nil {
			log.Warnf("Using default fee tiers, estimate for %d "+
				"block(s) failed: %v", target, err)
			c.cfg.Recorder.Degraded(opFees)

			return protocol.DefaultFeeTiers
		}
		rates[i] = rate
	}

	tiers := protocol.FeeTiers{
		Fast:   rates[0],
		Medium: rates[1],
		Slow:   rates[2],
	}
	log.Debugf("Fee estimates: fast=%d medium=%d slow=%d sat/vB",
		tiers.Fast, tiers.Medium, tiers.Slow)

	return tiers
}

// estimateFee fetches a single estimate and converts it to whole sat/vB.
func (c *Client) estimateFee(ctx context.Context, target uint32) (uint64,
	error) {

	btcPerKvB, err := call(ctx, c, opFees, c.cfg.Timeouts.Fees,
		func(ctx context.Context) (float64, error) {
			return c.cfg.Backend.EstimateFee(ctx, target)
		},
	)
	if err != nil {
		return 0, err
	}

	return convertFeeRate(btcPerKvB)
}

// convertFeeRate converts a BTC/kvB rate into sat/vB, rounded to the nearest
// integer and clamped to the relay fee floor.
func convertFeeRate(btcPerKvB float64) (uint64, error) {
	rate, err := unit.NewBTCPerKVByte(btcPerKvB)
	if err != nil {
		return 0, err
	}

	return rate.FeePerVByte().Clamp(minFeeRate), nil
}
