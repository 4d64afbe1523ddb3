package bitcoind

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/nostrbridge/backend"
	"github.com/stretchr/testify/require"
)

const testTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// newTestClient starts a fake bitcoind answering with handle and returns a
// regtest client pointed at it.
func newTestClient(t *testing.T,
	handle func(req *rpcRequest) (interface{}, *rpcError)) *Client {

	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var req rpcRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			var (
				result interface{}
				rpcErr *rpcError
			)
			switch req.Method {
			case "getnetworkinfo":
				result = map[string]interface{}{
					"version":    270000,
					"subversion": "/Satoshi:27.0.0/",
				}

			default:
				result, rpcErr = handle(&req)
			}

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     req.ID,
				"result": result,
				"error":  rpcErr,
			})
		},
	))
	t.Cleanup(srv.Close)

	c, err := New(&Config{
		ChainParams: &chaincfg.RegressionNetParams,
		Host:        strings.TrimPrefix(srv.URL, "http://"),
		User:        "user",
		Pass:        "pass",
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func methodNotFound() *rpcError {
	return &rpcError{Code: -32601, Message: "Method not found"}
}

func testAddress(t *testing.T) btcutil.Address {
	t.Helper()

	addr, err := btcutil.DecodeAddress(
		"bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080",
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	return addr
}

// TestScanTxOutSet checks lookup and UTXO listing are built from a single
// scantxoutset reply, with block times read from the confirming headers.
func TestScanTxOutSet(t *testing.T) {
	t.Parallel()

	addr := testAddress(t)

	blockTime := time.Unix(1700000000, 0)
	header := wire.NewBlockHeader(
		4, &chainhash.Hash{}, &chainhash.Hash{}, 0x207fffff, 0,
	)
	header.Timestamp = blockTime
	var headerBuf bytes.Buffer
	require.NoError(t, header.Serialize(&headerBuf))

	var (
		mu          sync.Mutex
		hashQueries []int64
	)
	c := newTestClient(t, func(req *rpcRequest) (interface{}, *rpcError) {
		switch req.Method {
		case "getblockhash":
			var height int64
			_ = json.Unmarshal(req.Params[0], &height)

			mu.Lock()
			hashQueries = append(hashQueries, height)
			mu.Unlock()

			return header.BlockHash().String(), nil

		case "getblockheader":
			return hex.EncodeToString(headerBuf.Bytes()), nil

		case "scantxoutset":

		default:
			return nil, methodNotFound()
		}

		var descs []string
		if len(req.Params) != 2 ||
			json.Unmarshal(req.Params[1], &descs) != nil ||
			len(descs) != 1 ||
			descs[0] != "addr("+addr.EncodeAddress()+")" {

			return nil, &rpcError{Code: -8, Message: "bad scan"}
		}

		return map[string]interface{}{
			"success": true,
			"height":  150,
			"unspents": []map[string]interface{}{
				{"txid": testTxID, "vout": 0, "amount": 0.5,
					"height": 100},
				{"txid": testTxID, "vout": 1, "amount": 0.25,
					"height": 100},
			},
		}, nil
	})

	history, err := c.Lookup(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(75_000_000), history.Confirmed)
	require.Zero(t, history.Unconfirmed)
	require.Len(t, history.Transactions, 1)
	require.Equal(t, btcutil.Amount(75_000_000),
		history.Transactions[0].Amount)
	require.True(t, history.Transactions[0].BlockTime.Equal(blockTime))

	mu.Lock()
	require.Equal(t, []int64{100}, hashQueries)
	mu.Unlock()

	unspent, err := c.ListUnspent(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, unspent, 2)
	require.EqualValues(t, 1, unspent[1].OutPoint.Index)
	require.Equal(t, btcutil.Amount(25_000_000), unspent[1].Value)
	require.EqualValues(t, 100, unspent[1].Height)
}

// TestAbandonedScanAborted asserts a scan given up on is aborted by the
// next scan rather than in the background.
func TestAbandonedScanAborted(t *testing.T) {
	t.Parallel()

	addr := testAddress(t)

	var (
		mu      sync.Mutex
		actions []string
	)
	c := newTestClient(t, func(req *rpcRequest) (interface{}, *rpcError) {
		if req.Method != "scantxoutset" {
			return nil, methodNotFound()
		}

		var action string
		_ = json.Unmarshal(req.Params[0], &action)

		mu.Lock()
		actions = append(actions, action)
		first := len(actions) == 1
		mu.Unlock()

		if action == "abort" {
			return true, nil
		}
		if first {
			time.Sleep(150 * time.Millisecond)
		}

		return map[string]interface{}{
			"success":  true,
			"height":   150,
			"unspents": []interface{}{},
		}, nil
	})

	ctx, cancel := context.WithTimeout(
		context.Background(), 30*time.Millisecond,
	)
	defer cancel()

	_, err := c.ListUnspent(ctx, addr)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Nothing is sent on behalf of the abandoned scan until the next one.
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"start"}, actions)
	mu.Unlock()

	unspent, err := c.ListUnspent(context.Background(), addr)
	require.NoError(t, err)
	require.Empty(t, unspent)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"start", "abort", "start"}, actions)
}

func TestEstimateFee(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *rpcRequest) (interface{}, *rpcError) {
		if req.Method != "estimatesmartfee" {
			return nil, methodNotFound()
		}

		var target int64
		_ = json.Unmarshal(req.Params[0], &target)
		if target == 1 {
			return map[string]interface{}{
				"feerate": 0.00015, "blocks": 2,
			}, nil
		}

		return map[string]interface{}{
			"errors": []string{"Insufficient data or no " +
				"feerate found"},
			"blocks": 0,
		}, nil
	})

	rate, err := c.EstimateFee(context.Background(), 1)
	require.NoError(t, err)
	require.InDelta(t, 0.00015, rate, 1e-12)

	_, err = c.EstimateFee(context.Background(), 12)
	require.ErrorIs(t, err, backend.ErrNoEstimate)
}

func TestBroadcastRejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *rpcRequest) (interface{}, *rpcError) {
		if req.Method != "sendrawtransaction" {
			return nil, methodNotFound()
		}

		return nil, &rpcError{
			Code:    -25,
			Message: "bad-txns-inputs-missingorspent",
		}
	})

	prev, err := chainhash.NewHashFromStr(testTxID)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(prev, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	_, err = c.BroadcastRaw(context.Background(), buf.Bytes())
	require.ErrorIs(t, err, backend.ErrRejected)
	require.Contains(t, err.Error(), "missingorspent")
}

func TestCurrentHeightAndNetwork(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(req *rpcRequest) (interface{}, *rpcError) {
		switch req.Method {
		case "getblockcount":
			return 840000, nil

		case "getblockhash":
			return chaincfg.MainNetParams.GenesisHash.String(), nil
		}

		return nil, methodNotFound()
	})

	height, err := c.CurrentHeight(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 840000, height)

	// The fake reports the mainnet genesis while the client expects
	// regtest.
	err = c.VerifyNetwork(context.Background())
	require.ErrorContains(t, err, "does not match")
}

func TestWithCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(
		context.Background(), 20*time.Millisecond,
	)
	defer cancel()

	block := make(chan struct{})
	defer close(block)

	_, err := withCancel(ctx, func() (int, error) {
		<-block
		return 1, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
