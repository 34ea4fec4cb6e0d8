package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "securedocs-backend/pkg/errors"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	drk := testDRK()

	for _, plaintext := range []string{"", "Hello", "Hello world", "多字节文本 🚀"} {
		cipherText, iv, err := EncryptBlock(plaintext, drk, "b1")
		require.NoError(t, err)

		decrypted, err := DecryptBlock(cipherText, iv, drk, "b1")
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	drk := testDRK()

	_, iv1, err := EncryptBlock("same plaintext", drk, "b1")
	require.NoError(t, err)
	_, iv2, err := EncryptBlock("same plaintext", drk, "b1")
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
}

func TestDecryptTamperedCipherText(t *testing.T) {
	drk := testDRK()

	cipherText, iv, err := EncryptBlock("Hello", drk, "b1")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(cipherText)
	require.NoError(t, err)

	// Flip one byte at every position; each must fail the tag check
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := DecryptBlock(base64.StdEncoding.EncodeToString(tampered), iv, drk, "b1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeDecryptionFailed, apperrors.CodeOf(err))
	}
}

func TestDecryptTamperedIV(t *testing.T) {
	drk := testDRK()

	cipherText, iv, err := EncryptBlock("Hello", drk, "b1")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(iv)
	require.NoError(t, err)
	raw[0] ^= 0x01

	_, err = DecryptBlock(cipherText, base64.StdEncoding.EncodeToString(raw), drk, "b1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDecryptionFailed, apperrors.CodeOf(err))
}

func TestDecryptWrongBlockContext(t *testing.T) {
	drk := testDRK()

	cipherText, iv, err := EncryptBlock("Hello", drk, "b1")
	require.NoError(t, err)

	// Same root key, different block id: derived key differs, tag check fails
	_, err = DecryptBlock(cipherText, iv, drk, "b2")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDecryptionFailed, apperrors.CodeOf(err))
}

func TestEpochIsolation(t *testing.T) {
	epoch0DRK := testDRK()
	epoch1DRK, err := GenerateRootKey()
	require.NoError(t, err)

	cipherText, iv, err := EncryptBlock("epoch zero content", epoch0DRK, "b1")
	require.NoError(t, err)

	// A block encrypted under the epoch-0 key must not decrypt under the
	// epoch-1 key, even for the same block id
	_, err = DecryptBlock(cipherText, iv, epoch1DRK, "b1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDecryptionFailed, apperrors.CodeOf(err))
}
