package nostr

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConversationKeyVector checks the first NIP-44 v2 test vector, where
// the two secret keys are 1 and 2.
func TestConversationKeyVector(t *testing.T) {
	t.Parallel()

	sec1, sec2 := scalarKey(1), scalarKey(2)

	key := NewConversationKey(sec1, sec2.PubKey())
	require.Equal(t,
		"c41c775356fd92eadc63ff5a0dc1da211b268cbea22316767095b2871ea1412d",
		hex.EncodeToString(key[:]),
	)

	// Both sides derive the same key.
	require.Equal(t, key, NewConversationKey(sec2, sec1.PubKey()))

	nonce := make([]byte, 32)
	nonce[31] = 1

	payload, err := key.encryptWithNonce("a", nonce)
	require.NoError(t, err)
	require.Equal(t,
		"AgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABee0G5VSK0/9YypIObAtDKf"+
			"YEAjD35uVkHyB0F4DwrcNaCXlCWZKaArsGrY6M9wnuTMxWfp1RTN9Xga8"+
			"no+kF5Vsb",
		payload,
	)

	plaintext, err := key.Decrypt(payload)
	require.NoError(t, err)
	require.Equal(t, "a", plaintext)
}

func TestPaddedLen(t *testing.T) {
	t.Parallel()

	tests := [][2]int{
		{16, 32}, {32, 32}, {33, 64}, {37, 64}, {45, 64}, {49, 64},
		{64, 64}, {65, 96}, {100, 128}, {111, 128}, {200, 224},
		{250, 256}, {320, 320}, {383, 384}, {384, 384}, {400, 448},
		{500, 512}, {512, 512}, {515, 640}, {700, 768}, {800, 896},
		{900, 1024}, {1020, 1024}, {65536, 65536},
	}

	for _, tc := range tests {
		require.Equal(t, tc[1], paddedLen(tc[0]), "length %d", tc[0])
	}
}

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()

	alice, bob := scalarKey(7), scalarKey(9)
	key := NewConversationKey(alice, bob.PubKey())

	for _, msg := range []string{
		"x",
		`{"type":"get_fees","req_id":"1"}`,
		strings.Repeat("€", 1000),
		strings.Repeat("a", maxPlaintextLen),
	} {
		payload, err := key.Encrypt(msg)
		require.NoError(t, err)

		got, err := NewConversationKey(bob, alice.PubKey()).Decrypt(
			payload,
		)
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}

	_, err := key.Encrypt("")
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = key.Encrypt(strings.Repeat("a", maxPlaintextLen+1))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecryptRejects(t *testing.T) {
	t.Parallel()

	key := NewConversationKey(scalarKey(3), scalarKey(4).PubKey())

	payload, err := key.Encrypt("hello")
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	// Flip a ciphertext bit.
	tampered := append([]byte(nil), data...)
	tampered[40] ^= 0x01
	_, err = key.Decrypt(base64.StdEncoding.EncodeToString(tampered))
	require.ErrorIs(t, err, ErrInvalidMAC)

	// Unknown version byte.
	versioned := append([]byte(nil), data...)
	versioned[0] = 1
	_, err = key.Decrypt(base64.StdEncoding.EncodeToString(versioned))
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = key.Decrypt("#invalid")
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = key.Decrypt("AAAA")
	require.ErrorIs(t, err, ErrInvalidPayload)

	// A different conversation cannot authenticate the payload.
	other := NewConversationKey(scalarKey(5), scalarKey(4).PubKey())
	_, err = other.Decrypt(payload)
	require.ErrorIs(t, err, ErrInvalidMAC)
}
