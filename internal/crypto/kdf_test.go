package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "securedocs-backend/pkg/errors"
)

func testDRK() []byte {
	drk := make([]byte, DRKSize)
	for i := range drk {
		drk[i] = byte(i)
	}
	return drk
}

func TestDeriveKeyDeterministic(t *testing.T) {
	drk := testDRK()

	k1, err := DeriveKey(drk, "b1", PurposeCipher)
	require.NoError(t, err)
	k2, err := DeriveKey(drk, "b1", PurposeCipher)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestDeriveKeyPurposeIndependence(t *testing.T) {
	drk := testDRK()

	cipherKey, err := DeriveKey(drk, "b1", PurposeCipher)
	require.NoError(t, err)
	integrityKey, err := DeriveKey(drk, "b1", PurposeIntegrity)
	require.NoError(t, err)

	// Same root key and block, different purpose: keys must be independent
	assert.False(t, bytes.Equal(cipherKey, integrityKey))
}

func TestDeriveKeyBlockContext(t *testing.T) {
	drk := testDRK()

	k1, err := DeriveKey(drk, "b1", PurposeCipher)
	require.NoError(t, err)
	k2, err := DeriveKey(drk, "b2", PurposeCipher)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(k1, k2))
}

func TestDeriveKeyRejectsWrongLength(t *testing.T) {
	_, err := DeriveKey([]byte("short"), "b1", PurposeCipher)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidKeyMaterial, apperrors.CodeOf(err))
}
