package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const walletKey = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func openTestStore(t *testing.T, dir string, c clock.Clock) *Store {
	t.Helper()

	s, err := Open(Config{
		DataDir:     dir,
		DBTimeout:   time.Second,
		EventMaxAge: 10 * time.Minute,
		Clock:       c,
	})
	require.NoError(t, err)

	return s
}

// TestOpenCreatesDatabase asserts the first Open creates the database file
// and a second Open reuses it.
func TestOpenCreatesDatabase(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "mainnet")
	s := openTestStore(t, dir, clock.NewDefaultClock())
	require.NoError(t, s.Close())

	_, err := os.Stat(filepath.Join(dir, DBName))
	require.NoError(t, err)

	s = openTestStore(t, dir, clock.NewDefaultClock())
	defer s.Close()

	fresh, err := s.MarkSeen(strings.Repeat("ab", 32))
	require.NoError(t, err)
	require.True(t, fresh)
}

// TestIdentityPersists asserts the identity key is generated once and
// survives reopening the database.
func TestIdentityPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := openTestStore(t, dir, clock.NewDefaultClock())

	first, err := s.Identity()
	require.NoError(t, err)

	again, err := s.Identity()
	require.NoError(t, err)
	require.Equal(t, first.Serialize(), again.Serialize())

	require.NoError(t, s.Close())

	s = openTestStore(t, dir, clock.NewDefaultClock())
	defer s.Close()

	reopened, err := s.Identity()
	require.NoError(t, err)
	require.Equal(t, first.Serialize(), reopened.Serialize())
}

func TestPairing(t *testing.T) {
	t.Parallel()

	start := time.Unix(1700000000, 0)
	testClock := clock.NewTestClock(start)

	s := openTestStore(t, t.TempDir(), testClock)
	defer s.Close()

	_, err := s.FetchPairing(walletKey)
	require.ErrorIs(t, err, ErrNotFound)

	// Touching an unknown wallet does not create a pairing.
	require.NoError(t, s.TouchPairing(walletKey))
	_, err = s.FetchPairing(walletKey)
	require.ErrorIs(t, err, ErrNotFound)

	p, err := s.RecordPairing(walletKey)
	require.NoError(t, err)
	require.Equal(t, start, p.PairedAt)

	testClock.SetTime(start.Add(time.Hour))
	require.NoError(t, s.TouchPairing(walletKey))

	// A second hello keeps the original pairing time.
	testClock.SetTime(start.Add(2 * time.Hour))
	_, err = s.RecordPairing(walletKey)
	require.NoError(t, err)

	p, err = s.FetchPairing(walletKey)
	require.NoError(t, err)
	require.Equal(t, walletKey, p.PubKey)
	require.Equal(t, start, p.PairedAt)
	require.Equal(t, start.Add(2*time.Hour), p.LastSeen)

	other := strings.Repeat("ab", 32)
	testClock.SetTime(start.Add(3 * time.Hour))
	_, err = s.RecordPairing(other)
	require.NoError(t, err)

	all, err := s.Pairings()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, other, all[0].PubKey)
	require.Equal(t, walletKey, all[1].PubKey)

	_, err = s.RecordPairing("not-a-key")
	require.Error(t, err)
}

func TestPairingEncoding(t *testing.T) {
	t.Parallel()

	p := &Pairing{
		PairedAt: time.Unix(1700000000, 0),
		LastSeen: time.Unix(1700003600, 0),
	}
	encoded, err := encodePairing(p)
	require.NoError(t, err)

	key := make([]byte, 32)
	decoded, err := decodePairing(key, encoded)
	require.NoError(t, err)
	require.Equal(t, p.PairedAt, decoded.PairedAt)
	require.Equal(t, p.LastSeen, decoded.LastSeen)

	_, err = decodePairing(key, nil)
	require.Error(t, err)
}

// TestSeenEvents asserts ids are reported fresh once and that pruning only
// forgets ids older than twice the event age limit.
func TestSeenEvents(t *testing.T) {
	t.Parallel()

	start := time.Unix(1700000000, 0)
	testClock := clock.NewTestClock(start)

	s := openTestStore(t, t.TempDir(), testClock)
	defer s.Close()

	oldID := strings.Repeat("01", 32)
	newID := strings.Repeat("02", 32)

	fresh, err := s.MarkSeen(oldID)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = s.MarkSeen(oldID)
	require.NoError(t, err)
	require.False(t, fresh)

	testClock.SetTime(start.Add(15 * time.Minute))
	_, err = s.MarkSeen(newID)
	require.NoError(t, err)

	n, err := s.PruneSeen()
	require.NoError(t, err)
	require.Zero(t, n)

	testClock.SetTime(start.Add(21 * time.Minute))
	n, err = s.PruneSeen()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	fresh, err = s.MarkSeen(oldID)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = s.MarkSeen(newID)
	require.NoError(t, err)
	require.False(t, fresh)

	_, err = s.MarkSeen("zz")
	require.Error(t, err)
}
