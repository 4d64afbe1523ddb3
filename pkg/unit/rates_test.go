package unit

import (
	"math"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestBTCPerKVByteConversion checks the BTC/kvB to sat/vB conversion and the
// one sat/vB floor.
func TestBTCPerKVByteConversion(t *testing.T) {
	t.Parallel()

	floor := FloorFromRelayFee(btcutil.Amount(1000))

	testCases := []struct {
		name         string
		btcPerKVB    float64
		expectedSats btcutil.Amount
		expectedVB   uint64
	}{
		{
			name:         "15 sat/vb",
			btcPerKVB:    0.00015,
			expectedSats: 15000,
			expectedVB:   15,
		},
		{
			name:         "sub-satoshi rate clamps to floor",
			btcPerKVB:    0.000002,
			expectedSats: 200,
			expectedVB:   1,
		},
		{
			name:         "zero clamps to floor",
			btcPerKVB:    0,
			expectedSats: 0,
			expectedVB:   1,
		},
		{
			name:         "fractional rate rounds to nearest",
			btcPerKVB:    0.0000125,
			expectedSats: 1250,
			expectedVB:   1,
		},
		{
			name:         "half rounds up",
			btcPerKVB:    0.000025,
			expectedSats: 2500,
			expectedVB:   3,
		},
		{
			name:         "1 BTC/kvb",
			btcPerKVB:    1,
			expectedSats: 100_000_000,
			expectedVB:   100_000,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rate, err := NewBTCPerKVByte(tc.btcPerKVB)
			require.NoError(t, err)
			require.Equal(t, tc.expectedSats, rate.Amount)

			satPerVB := rate.FeePerVByte()
			require.Equal(t, tc.expectedVB, satPerVB.Clamp(floor))
			require.Equal(
				t, tc.expectedSats, satPerVB.FeePerKVByte(),
			)
		})
	}
}

// TestNewBTCPerKVByteInvalid checks that unusable backend estimates are
// rejected.
func TestNewBTCPerKVByteInvalid(t *testing.T) {
	t.Parallel()

	for _, rate := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := NewBTCPerKVByte(rate)
		require.ErrorIs(t, err, ErrInvalidFeeRate)
	}
}

func TestSatPerVByteString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12.00 sat/vb", NewSatPerVByte(12).String())
	require.True(t, NewSatPerVByte(1).Equal(
		FloorFromRelayFee(btcutil.Amount(1000)),
	))
}
