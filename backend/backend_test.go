package backend

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestScriptHash checks the reversed sha256 script hash against the value
// documented by the Electrum protocol for the genesis coinbase address.
func TestScriptHash(t *testing.T) {
	t.Parallel()

	addr, err := btcutil.DecodeAddress(
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	hash, err := ScriptHash(addr)
	require.NoError(t, err)
	require.Equal(t,
		"8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0cfbf90b5c39161",
		hash,
	)
}

// TestNetAmount checks received outputs count positive and outputs of known
// funding transactions spent by the same script count negative.
func TestNetAmount(t *testing.T) {
	t.Parallel()

	ours := []byte{0x00, 0x14, 0x01}
	theirs := []byte{0x00, 0x14, 0x02}

	funding := wire.NewMsgTx(2)
	funding.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 7}, nil, nil))
	funding.AddTxOut(wire.NewTxOut(3000, theirs))
	funding.AddTxOut(wire.NewTxOut(5000, ours))

	fundingHash := funding.TxHash()
	unknown := chainhash.Hash{0x99}

	spend := wire.NewMsgTx(2)
	spend.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fundingHash, 1), nil,
		nil))
	spend.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&unknown, 0), nil, nil))
	spend.AddTxOut(wire.NewTxOut(3500, theirs))
	spend.AddTxOut(wire.NewTxOut(1200, ours))

	known := map[chainhash.Hash]*wire.MsgTx{
		fundingHash:    funding,
		spend.TxHash(): spend,
	}

	require.Equal(t, btcutil.Amount(5000), NetAmount(ours, funding, known))
	require.Equal(t, btcutil.Amount(-3800), NetAmount(ours, spend, known))
	require.Equal(t, btcutil.Amount(3500), NetAmount(theirs, spend, known))
}
