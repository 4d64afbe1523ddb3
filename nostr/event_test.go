package nostr

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// scalarKey returns the private key with the given small scalar value.
func scalarKey(v byte) *btcec.PrivateKey {
	var b [32]byte
	b[31] = v

	key, _ := btcec.PrivKeyFromBytes(b[:])

	return key
}

func TestEventHash(t *testing.T) {
	t.Parallel()

	ev := &Event{
		PubKey:    PubKeyHex(scalarKey(1).PubKey()),
		CreatedAt: 1700000000,
		Kind:      KindRequest,
		Tags:      Tags{{"p", "ab"}, {"req", "r1"}},
		Content:   "hello \"world\"\n<tag>&",
	}

	hash, err := ev.Hash()
	require.NoError(t, err)
	require.Equal(t,
		"aadab46b692f0f840653d7b2d54bd87bef3355a945d2d68610895e886082c162",
		hex.EncodeToString(hash[:]),
	)
}

func TestEventSignVerify(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	ev := &Event{
		CreatedAt: 1700000000,
		Kind:      KindResponse,
		Content:   "payload",
	}
	require.NoError(t, ev.Sign(key))
	require.NotNil(t, ev.Tags)
	require.Equal(t, PubKeyHex(key.PubKey()), ev.PubKey)
	require.NoError(t, ev.Verify())

	tampered := *ev
	tampered.Content = "other"
	require.ErrorIs(t, tampered.Verify(), ErrInvalidID)

	// Re-hashing the tampered content with someone else's signature must
	// still fail.
	hash, err := tampered.Hash()
	require.NoError(t, err)
	tampered.ID = hex.EncodeToString(hash[:])
	require.ErrorIs(t, tampered.Verify(), ErrInvalidSignature)

	bad := *ev
	bad.PubKey = "zz"
	require.Error(t, bad.Verify())
}

func TestTags(t *testing.T) {
	t.Parallel()

	tags := Tags{{"e"}, {"p", "alice"}, {"req", "r1"}, {"p", "bob"}}

	v, ok := tags.Value("p")
	require.True(t, ok)
	require.Equal(t, "alice", v)

	_, ok = tags.Value("e")
	require.False(t, ok)

	require.True(t, tags.Has("p", "bob"))
	require.False(t, tags.Has("req", "r2"))
}

func TestFilterMatches(t *testing.T) {
	t.Parallel()

	f := Filter{
		Kinds: []int{KindRequest},
		PTags: []string{"bridge"},
		Since: 100,
	}

	ev := &Event{
		Kind:      KindRequest,
		CreatedAt: 150,
		Tags:      Tags{{"p", "bridge"}},
	}
	require.True(t, f.Matches(ev))

	old := *ev
	old.CreatedAt = 99
	require.False(t, f.Matches(&old))

	other := *ev
	other.Tags = Tags{{"p", "someone"}}
	require.False(t, f.Matches(&other))

	wrongKind := *ev
	wrongKind.Kind = KindResponse
	require.False(t, f.Matches(&wrongKind))
}
