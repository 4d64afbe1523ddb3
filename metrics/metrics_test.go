package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/nostrbridge/gate"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	t.Parallel()

	m := New()

	m.GateCall("get_fees", gate.OutcomeTimeout, 30*time.Second)
	m.GateCall("get_fees", gate.OutcomeCooldown, 0)
	m.GateCall("get_fees", gate.OutcomeCooldown, 0)
	m.Degraded("get_fees")
	m.Request("get_fees", "ok")

	require.Equal(t, 2.0, testutil.ToFloat64(
		m.gateCalls.WithLabelValues("get_fees", "cooldown"),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.gateCalls.WithLabelValues("get_fees", "timeout"),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.degraded.WithLabelValues("get_fees"),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.requests.WithLabelValues("get_fees", "ok"),
	))
	require.Equal(t, 1, testutil.CollectAndCount(m.gateDuration))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.RegisterGauge("relays_connected", "Connected relays.",
		func() float64 { return 3 })
	m.Request("lookup", "failed")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "nostrbridge_relays_connected 3")
	require.Contains(t, string(body),
		`nostrbridge_requests_total{result="failed",type="lookup"} 1`)
}
