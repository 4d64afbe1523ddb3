package router

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/nostrbridge/gate"
	"github.com/btcsuite/nostrbridge/protocol"
	"github.com/stretchr/testify/require"
)

// countingClient is a ChainClient that counts every call it receives.
type countingClient struct {
	calls int32

	lookupErr    error
	broadcastErr error
}

func (c *countingClient) Lookup(_ context.Context,
	query string) (*protocol.LookupData, error) {

	atomic.AddInt32(&c.calls, 1)
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}

	return &protocol.LookupData{
		Query:            query,
		ConfirmedBalance: 42,
		Transactions:     []protocol.TxSummary{},
		AddressesScanned: 1,
	}, nil
}

func (c *countingClient) BroadcastTx(_ context.Context,
	_ string) (*chainhash.Hash, error) {

	atomic.AddInt32(&c.calls, 1)
	if c.broadcastErr != nil {
		return nil, c.broadcastErr
	}

	return &chainhash.Hash{0x01}, nil
}

func (c *countingClient) FeeEstimates(context.Context) protocol.FeeTiers {
	atomic.AddInt32(&c.calls, 1)
	return protocol.FeeTiers{Fast: 20, Medium: 10, Slow: 2}
}

func (c *countingClient) Utxos(context.Context,
	[]string) []protocol.UtxoInfo {

	atomic.AddInt32(&c.calls, 1)
	return []protocol.UtxoInfo{}
}

// countingRecorder records request results.
type countingRecorder struct {
	results []string
}

func (r *countingRecorder) Request(reqType, result string) {
	r.results = append(r.results, reqType+"/"+result)
}

// TestMalformedNeverReachesClient asserts that payloads failing validation
// never cause a chain call.
func TestMalformedNeverReachesClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   string
		wantReqID string
	}{
		{"missing req_id", `{"type":"get_fees"}`, ""},
		{"numeric req_id", `{"type":"get_fees","req_id":7}`, ""},
		{"missing query", `{"type":"lookup","req_id":"a"}`, "a"},
		{"empty query", `{"type":"lookup","req_id":"a","query":" "}`, "a"},
		{
			"legacy lookup without query",
			`{"type":"bitcoin_lookup","req_id":"l"}`, "l",
		},
		{
			"query wrong type",
			`{"type":"lookup","req_id":"b","query":12}`, "b",
		},
		{"missing tx_hex", `{"type":"broadcast_tx","req_id":"c"}`, "c"},
		{
			"addresses missing",
			`{"type":"get_utxos","req_id":"d"}`, "d",
		},
		{
			"addresses empty",
			`{"type":"get_utxos","req_id":"e","addresses":[]}`, "e",
		},
		{
			"addresses wrong type",
			`{"type":"get_utxos","req_id":"f","addresses":"x"}`, "f",
		},
		{
			"addresses null entry",
			`{"type":"get_utxos","req_id":"g","addresses":[null]}`,
			"g",
		},
		{
			"addresses trailing null",
			`{"type":"get_utxos","req_id":"h",` +
				`"addresses":["bc1q",null]}`, "h",
		},
		{
			"addresses blank entry",
			`{"type":"get_utxos","req_id":"i","addresses":[""]}`,
			"i",
		},
		{
			"addresses number entry",
			`{"type":"get_utxos","req_id":"j","addresses":[1]}`,
			"j",
		},
	}

	client := &countingClient{}
	rec := &countingRecorder{}
	r := New(client, rec)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := r.Dispatch(
				context.Background(), []byte(tc.payload), "npub",
			)
			require.NoError(t, err)

			errResp, ok := resp.(*protocol.ErrorResponse)
			require.True(t, ok, "got %T", resp)
			require.Equal(t, protocol.CodeMalformedRequest,
				errResp.Code)
			require.Equal(t, tc.wantReqID, errResp.ReqID())
		})
	}

	require.Zero(t, atomic.LoadInt32(&client.calls))
	require.Len(t, rec.results, len(tests))
}

// TestUnrecognizedDropped asserts unclassifiable payloads yield no response.
func TestUnrecognizedDropped(t *testing.T) {
	t.Parallel()

	payloads := []string{
		``,
		`not json`,
		`[]`,
		`"string"`,
		`null`,
		`{}`,
		`{"req_id":"x"}`,
		`{"type":"send_money","req_id":"x"}`,
		`{"type":5,"req_id":"x"}`,
	}

	client := &countingClient{}
	r := New(client, nil)

	for _, p := range payloads {
		resp, err := r.Dispatch(context.Background(), []byte(p), "npub")
		require.ErrorIs(t, err, ErrUnrecognizedRequest, "payload %q", p)
		require.Nil(t, resp)
	}

	require.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		client  *countingClient
		payload string
		want    string
	}{{
		name:    "fees",
		client:  &countingClient{},
		payload: `{"type":"get_fees","req_id":"f1"}`,
		want: `{"type":"fee_estimate","req_id":"f1","fast":20,` +
			`"medium":10,"slow":2}`,
	}, {
		name:   "utxos",
		client: &countingClient{},
		payload: `{"type":"get_utxos","req_id":"u1",` +
			`"addresses":["bc1q"]}`,
		want: `{"type":"utxo_list","req_id":"u1","utxos":[]}`,
	}, {
		name:    "legacy lookup",
		client:  &countingClient{},
		payload: `{"type":"bitcoin_lookup","req_id":"l1","query":"x"}`,
		want: `{"type":"bitcoin_lookup_response","req":"l1",` +
			`"req_id":"l1","status":"ok","result":{` +
			`"query":"x","confirmed_balance":42,` +
			`"unconfirmed_balance":0,"transactions":[]}}`,
	}, {
		name:    "legacy lookup under cooldown",
		client:  &countingClient{lookupErr: gate.ErrCooldownActive},
		payload: `{"type":"bitcoin_lookup","req_id":"l3","query":"x"}`,
		want: `{"type":"bitcoin_lookup_response","req":"l3",` +
			`"req_id":"l3","status":"error",` +
			`"error":"backend unavailable"}`,
	}, {
		name:    "lookup under cooldown",
		client:  &countingClient{lookupErr: gate.ErrCooldownActive},
		payload: `{"type":"lookup","req_id":"l2","query":"x"}`,
		want: `{"type":"lookup_result","req_id":"l2",` +
			`"error":"backend unavailable"}`,
	}, {
		name:    "broadcast ok",
		client:  &countingClient{},
		payload: `{"type":"broadcast_tx","req_id":"b1","tx_hex":"00"}`,
		want: `{"type":"broadcast_result","req_id":"b1",` +
			`"success":true,"txid":"` +
			(&chainhash.Hash{0x01}).String() + `","error":null}`,
	}, {
		name:    "broadcast timeout",
		client:  &countingClient{broadcastErr: gate.ErrTimeout},
		payload: `{"type":"broadcast_tx","req_id":"b2","tx_hex":"00"}`,
		want: `{"type":"broadcast_result","req_id":"b2",` +
			`"success":false,"txid":null,` +
			`"error":"backend unavailable"}`,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(tc.client, nil)

			resp, err := r.Dispatch(
				context.Background(), []byte(tc.payload), "npub",
			)
			require.NoError(t, err)

			b, err := json.Marshal(resp)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(b))
			require.EqualValues(t, 1, tc.client.calls)
		})
	}
}

// TestFallbackReqID asserts the fallback id is only used when the payload
// carries none.
func TestFallbackReqID(t *testing.T) {
	t.Parallel()

	r := New(&countingClient{}, nil)

	resp, err := r.Dispatch(context.Background(),
		[]byte(`{"type":"get_fees"}`), "npub", WithFallbackReqID("tag"),
	)
	require.NoError(t, err)
	require.IsType(t, &protocol.FeeEstimate{}, resp)
	require.Equal(t, "tag", resp.ReqID())

	resp, err = r.Dispatch(context.Background(),
		[]byte(`{"type":"get_fees","req_id":"own"}`), "npub",
		WithFallbackReqID("tag"),
	)
	require.NoError(t, err)
	require.Equal(t, "own", resp.ReqID())
}
