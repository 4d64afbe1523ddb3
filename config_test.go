package main

import (
	"testing"

	"github.com/btcsuite/nostrbridge/netparams"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigDefaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, validateConfig(&cfg))

	require.Equal(t, &netparams.MainNetParams, activeNet)
	require.Equal(t, "localhost:50001", cfg.Electrum)
	require.Equal(t, defaultRelays, cfg.Relays)
}

func TestValidateConfigNetworks(t *testing.T) {
	cfg := defaultConfig()
	cfg.RegTest = true
	cfg.ElectrumTLS = true
	require.NoError(t, validateConfig(&cfg))
	require.Equal(t, &netparams.RegressionNetParams, activeNet)
	require.Equal(t, "localhost:60402", cfg.Electrum)

	cfg = defaultConfig()
	cfg.TestNet3 = true
	cfg.SigNet = true
	require.Error(t, validateConfig(&cfg))
}

func TestValidateConfigBitcoind(t *testing.T) {
	cfg := defaultConfig()
	cfg.Backend = backendBitcoind
	cfg.SigNet = true
	require.Error(t, validateConfig(&cfg), "credentials are required")

	cfg = defaultConfig()
	cfg.Backend = backendBitcoind
	cfg.SigNet = true
	cfg.BitcoindUser = "user"
	cfg.BitcoindPass = "pass"
	require.NoError(t, validateConfig(&cfg))
	require.Equal(t, "localhost:38332", cfg.Bitcoind)
}

func TestValidateConfigRelays(t *testing.T) {
	cfg := defaultConfig()
	cfg.Relays = []string{"wss://relay.example/", "wss://relay.example"}
	cfg.Proxy = "127.0.0.1"
	require.NoError(t, validateConfig(&cfg))
	require.Equal(t, []string{"wss://relay.example"}, cfg.Relays)
	require.Equal(t, "127.0.0.1:9050", cfg.Proxy)

	cfg = defaultConfig()
	cfg.Relays = []string{"http://relay.example"}
	require.Error(t, validateConfig(&cfg))

	cfg = defaultConfig()
	cfg.EventMaxAge = 0
	require.Error(t, validateConfig(&cfg))
}

func TestParseAndSetDebugLevels(t *testing.T) {
	require.NoError(t, parseAndSetDebugLevels("debug"))
	require.NoError(t, parseAndSetDebugLevels("CHNC=trace,RTER=warn"))

	require.Error(t, parseAndSetDebugLevels("loud"))
	require.Error(t, parseAndSetDebugLevels("NOPE=debug"))
	require.Error(t, parseAndSetDebugLevels("CHNC=debug,RTER"))
}

func TestVersion(t *testing.T) {
	require.Regexp(t, `^\d+\.\d+\.\d+(-[0-9A-Za-z-]+)?$`, version())
}
