package netparams

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/require"
)

// TestTestNet4Genesis checks the testnet4 genesis block against the hash
// published for the network.
func TestTestNet4Genesis(t *testing.T) {
	require.Equal(t,
		"00000000da84f2bafbbc53dee25a72ae507ff4914b867c565be350b0da8bf043",
		testNet4GenesisBlock.BlockHash().String())
	require.Equal(t,
		"7aa0a7ae1e223414cb807e40cd57e667b718e42aaf9306db9102fe28912b7b4e",
		testNet4GenesisBlock.Header.MerkleRoot.String())
	require.Equal(t, *TestNet4ChainParams.GenesisHash,
		testNet4GenesisBlock.BlockHash())
}

func TestPorts(t *testing.T) {
	nets := []*Params{
		&MainNetParams, &TestNet3Params, &TestNet4Params,
		&SigNetParams, &RegressionNetParams, &SimNetParams,
	}
	for _, p := range nets {
		require.NotEmpty(t, p.ElectrumDefaultPort(false), p.Name)
		require.NotEmpty(t, p.ElectrumDefaultPort(true), p.Name)
		require.NotEqual(t, p.ElectrumPort, p.ElectrumTLSPort, p.Name)
		require.NotEmpty(t, p.BitcoindRPCPort, p.Name)
	}

	require.Equal(t, "50002", MainNetParams.ElectrumDefaultPort(true))
	require.Equal(t, "18443", RegressionNetParams.BitcoindRPCPort)
}

// TestTestNet4KeyVersions asserts extended keys use the testnet magics.
func TestTestNet4KeyVersions(t *testing.T) {
	seed := make([]byte, hdkeychain.RecommendedSeedLen)
	master, err := hdkeychain.NewMaster(seed, &TestNet4ChainParams)
	require.NoError(t, err)

	pub, err := master.Neuter()
	require.NoError(t, err)
	require.Equal(t, "tpub", pub.String()[:4])
}
