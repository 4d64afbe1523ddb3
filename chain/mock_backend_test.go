package chain

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/nostrbridge/backend"
	"github.com/stretchr/testify/mock"
)

// mockBackend is a mock implementation of the backend.Backend interface.
type mockBackend struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockBackend implements the Backend
// interface.
var _ backend.Backend = (*mockBackend)(nil)

// Lookup implements the backend.Backend interface.
func (m *mockBackend) Lookup(ctx context.Context,
	address btcutil.Address) (*backend.AddressHistory, error) {

	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*backend.AddressHistory), args.Error(1)
}

// BroadcastRaw implements the backend.Backend interface.
func (m *mockBackend) BroadcastRaw(ctx context.Context,
	rawTx []byte) (*chainhash.Hash, error) {

	args := m.Called(ctx, rawTx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

// EstimateFee implements the backend.Backend interface.
func (m *mockBackend) EstimateFee(ctx context.Context,
	targetBlocks uint32) (float64, error) {

	args := m.Called(ctx, targetBlocks)
	return args.Get(0).(float64), args.Error(1)
}

// ListUnspent implements the backend.Backend interface.
func (m *mockBackend) ListUnspent(ctx context.Context,
	address btcutil.Address) ([]backend.Unspent, error) {

	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]backend.Unspent), args.Error(1)
}

// CurrentHeight implements the backend.Backend interface.
func (m *mockBackend) CurrentHeight(ctx context.Context) (int32, error) {
	args := m.Called(ctx)
	return args.Get(0).(int32), args.Error(1)
}

// Close implements the backend.Backend interface.
func (m *mockBackend) Close() error {
	return nil
}

// blockUntilDone makes a mocked call hang until its context expires.
func blockUntilDone(args mock.Arguments) {
	ctx := args.Get(0).(context.Context)
	<-ctx.Done()
}
