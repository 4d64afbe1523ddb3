// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nostr

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const (
	nip44Version = 2

	nip44Salt = "nip44-v2"

	// Plaintext limits in bytes.
	minPlaintextLen = 1
	maxPlaintextLen = 65535

	// Payload limits, base64 encoded and decoded.
	minPayloadLen = 132
	maxPayloadLen = 87472
	minDataLen    = 99
	maxDataLen    = 65603

	nonceLen = 32
	macLen   = 32
)

var (
	// ErrUnsupportedVersion is returned for payloads of an unknown NIP-44
	// version.
	ErrUnsupportedVersion = errors.New("unsupported encryption version")

	// ErrInvalidPayload is returned for payloads with a bad length,
	// encoding or padding.
	ErrInvalidPayload = errors.New("invalid encrypted payload")

	// ErrInvalidMAC is returned when payload authentication fails.
	ErrInvalidMAC = errors.New("invalid payload mac")
)

// ConversationKey is the long lived NIP-44 key shared by two parties.
type ConversationKey [32]byte

// NewConversationKey derives the conversation key between priv and pub. The
// result is the same from either side.
func NewConversationKey(priv *btcec.PrivateKey,
	pub *btcec.PublicKey) ConversationKey {

	shared := btcec.GenerateSharedSecret(priv, pub)

	var key ConversationKey
	copy(key[:], hkdf.Extract(sha256.New, shared, []byte(nip44Salt)))

	return key
}

// messageKeys derives the per message cipher key, cipher nonce and hmac key.
func (k ConversationKey) messageKeys(nonce []byte) ([]byte, []byte, []byte,
	error) {

	keys := make([]byte, chacha20.KeySize+chacha20.NonceSize+32)
	r := hkdf.Expand(sha256.New, k[:], nonce)
	if _, err := io.ReadFull(r, keys); err != nil {
		return nil, nil, nil, err
	}

	cipherKey := keys[:chacha20.KeySize]
	cipherNonce := keys[chacha20.KeySize : chacha20.KeySize+
		chacha20.NonceSize]
	hmacKey := keys[chacha20.KeySize+chacha20.NonceSize:]

	return cipherKey, cipherNonce, hmacKey, nil
}

// Encrypt encrypts plaintext under a fresh random nonce.
func (k ConversationKey) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	return k.encryptWithNonce(plaintext, nonce)
}

func (k ConversationKey) encryptWithNonce(plaintext string,
	nonce []byte) (string, error) {

	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}

	cipherKey, cipherNonce, hmacKey, err := k.messageKeys(nonce)
	if err != nil {
		return "", err
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(cipherKey, cipherNonce)
	if err != nil {
		return "", err
	}
	cipher.XORKeyStream(padded, padded)

	data := make([]byte, 0, 1+nonceLen+len(padded)+macLen)
	data = append(data, nip44Version)
	data = append(data, nonce...)
	data = append(data, padded...)
	data = append(data, mac(hmacKey, nonce, padded)...)

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decrypt authenticates and decrypts a NIP-44 v2 payload.
func (k ConversationKey) Decrypt(payload string) (string, error) {
	if len(payload) == 0 || payload[0] == '#' {
		return "", ErrUnsupportedVersion
	}
	if len(payload) < minPayloadLen || len(payload) > maxPayloadLen {
		return "", fmt.Errorf("%w: payload length %d", ErrInvalidPayload,
			len(payload))
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(data) < minDataLen || len(data) > maxDataLen {
		return "", fmt.Errorf("%w: data length %d", ErrInvalidPayload,
			len(data))
	}
	if data[0] != nip44Version {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	nonce := data[1 : 1+nonceLen]
	ciphertext := data[1+nonceLen : len(data)-macLen]
	tag := data[len(data)-macLen:]

	cipherKey, cipherNonce, hmacKey, err := k.messageKeys(nonce)
	if err != nil {
		return "", err
	}

	if !hmac.Equal(tag, mac(hmacKey, nonce, ciphertext)) {
		return "", ErrInvalidMAC
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(cipherKey, cipherNonce)
	if err != nil {
		return "", err
	}

	padded := make([]byte, len(ciphertext))
	cipher.XORKeyStream(padded, ciphertext)

	return unpad(padded)
}

func mac(key, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(nonce)
	h.Write(ciphertext)

	return h.Sum(nil)
}

// paddedLen returns the padded length of an n byte plaintext.
func paddedLen(n int) int {
	if n <= 32 {
		return 32
	}

	nextPower := 1 << bits.Len(uint(n-1))

	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}

	return chunk * ((n-1)/chunk + 1)
}

// pad prefixes plaintext with its big endian u16 length and zero pads it.
func pad(plaintext string) ([]byte, error) {
	n := len(plaintext)
	if n < minPlaintextLen || n > maxPlaintextLen {
		return nil, fmt.Errorf("%w: plaintext length %d",
			ErrInvalidPayload, n)
	}

	padded := make([]byte, 2+paddedLen(n))
	binary.BigEndian.PutUint16(padded, uint16(n))
	copy(padded[2:], plaintext)

	return padded, nil
}

func unpad(padded []byte) (string, error) {
	if len(padded) < 2 {
		return "", ErrInvalidPayload
	}

	n := int(binary.BigEndian.Uint16(padded))
	if n < minPlaintextLen || len(padded) != 2+paddedLen(n) {
		return "", fmt.Errorf("%w: bad padding", ErrInvalidPayload)
	}

	return string(padded[2 : 2+n]), nil
}
