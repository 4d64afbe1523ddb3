package nostr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCalculateMinMax tests the calculation of the min and max jitter values.
func TestCalculateMinMax(t *testing.T) {
	tests := []struct {
		name     string
		duration int64
		scaler   float64
		min, max int64
	}{
		{"scaler is 0", 1000, 0, 1000, 1000},
		{"scaler is 0.5", 1000, 0.5, 500, 1500},
		{"scaler is 1", 1000, 1, 0, 2000},
		{"scaler is greater than 1", 1000, 1.5, 0, 2500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			min, max := calculateMinMax(
				time.Duration(tc.duration), tc.scaler,
			)
			require.Equal(t, tc.min, min)
			require.Equal(t, tc.max, max)
		})
	}

	require.Panics(t, func() {
		calculateMinMax(time.Second, -0.5)
	})
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	exact := Backoff{Min: time.Second, Max: 10 * time.Second}
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		10 * time.Second, 10 * time.Second,
	}
	for attempt, d := range want {
		require.Equal(t, d, exact.Delay(attempt), "attempt %d", attempt)
	}

	// Very large attempts must not overflow into a negative delay.
	require.Equal(t, 10*time.Second, exact.Delay(1000))

	jittered := DefaultBackoff()
	for attempt := 0; attempt < 12; attempt++ {
		base := jittered.base(attempt)
		d := jittered.Delay(attempt)

		require.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8))
		require.LessOrEqual(t, d, time.Duration(float64(base)*1.2))
	}
}
