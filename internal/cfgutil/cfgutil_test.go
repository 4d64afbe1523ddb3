package cfgutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want string
		err  bool
	}{
		{"localhost", "localhost:50001", false},
		{"127.0.0.1:60001", "127.0.0.1:60001", false},
		{"::1", "[::1]:50001", false},
		{"[::1]:1234", "[::1]:1234", false},
		{"a:b:c]", "", true},
	}

	for _, tc := range tests {
		got, err := NormalizeAddress(tc.addr, "50001")
		if tc.err {
			require.Error(t, err, tc.addr)
			continue
		}
		require.NoError(t, err, tc.addr)
		require.Equal(t, tc.want, got)
	}
}

func TestNormalizeRelayURLs(t *testing.T) {
	t.Parallel()

	got, err := NormalizeRelayURLs([]string{
		"wss://relay.damus.io/", "wss://relay.damus.io",
		" ws://127.0.0.1:7777 ",
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"wss://relay.damus.io", "ws://127.0.0.1:7777",
	}, got)

	_, err = NormalizeRelayURLs([]string{"https://relay.example"})
	require.Error(t, err)

	_, err = NormalizeRelayURLs([]string{"wss://"})
	require.Error(t, err)
}

func TestExplicitString(t *testing.T) {
	t.Parallel()

	s := NewExplicitString("default")
	require.False(t, s.ExplicitlySet())

	require.NoError(t, s.UnmarshalFlag("default"))
	require.True(t, s.ExplicitlySet())

	v, err := s.MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "default", v)
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	exists, err := FileExists(dir)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = FileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.False(t, exists)
}
