package epoch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securedocs-backend/internal/crypto"
	apperrors "securedocs-backend/pkg/errors"
)

func TestCreateAcceptDistributionRoundTrip(t *testing.T) {
	manager := NewManager()

	owner, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	recipient, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)

	drk, err := crypto.GenerateRootKey()
	require.NoError(t, err)

	documentID := uuid.New()
	ownerID := uuid.New()
	recipientID := uuid.New()
	_, recipientEncKey := recipient.PublicIdentity()

	record, err := manager.CreateDistribution(drk, 0, documentID, recipientID, recipientEncKey, ownerID, owner.SigningPrivate)
	require.NoError(t, err)
	assert.Equal(t, ownerID, record.SignedBy)
	assert.Equal(t, recipientID, record.UserID)
	assert.Equal(t, int64(0), record.Epoch)

	ownerSignKey, _ := owner.PublicIdentity()
	opened, err := manager.AcceptDistribution(record, recipient, recipientID, ownerSignKey)
	require.NoError(t, err)
	assert.Equal(t, drk, opened)

	// Idempotent: re-accepting yields the same root key
	again, err := manager.AcceptDistribution(record, recipient, recipientID, ownerSignKey)
	require.NoError(t, err)
	assert.Equal(t, drk, again)
}

func TestAcceptDistributionSignatureGate(t *testing.T) {
	manager := NewManager()

	// Count decryption attempts; a bad signature must never reach one
	decryptCalls := 0
	realOpen := manager.open
	manager.open = func(v crypto.VerifiedKeyRecord, k *crypto.IdentityKeyPair) ([]byte, error) {
		decryptCalls++
		return realOpen(v, k)
	}

	owner, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	impostor, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	recipient, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)

	drk, err := crypto.GenerateRootKey()
	require.NoError(t, err)

	recipientID := uuid.New()
	_, recipientEncKey := recipient.PublicIdentity()

	// Record signed by the impostor but claiming the owner's identity
	record, err := manager.CreateDistribution(drk, 0, uuid.New(), recipientID, recipientEncKey, uuid.New(), impostor.SigningPrivate)
	require.NoError(t, err)

	ownerSignKey, _ := owner.PublicIdentity()
	opened, err := manager.AcceptDistribution(record, recipient, recipientID, ownerSignKey)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSignatureInvalid, apperrors.CodeOf(err))
	assert.Nil(t, opened)
	assert.Zero(t, decryptCalls)
}

func TestAcceptDistributionWrongRecipient(t *testing.T) {
	manager := NewManager()

	owner, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	recipient, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)

	drk, err := crypto.GenerateRootKey()
	require.NoError(t, err)

	_, recipientEncKey := recipient.PublicIdentity()
	record, err := manager.CreateDistribution(drk, 0, uuid.New(), uuid.New(), recipientEncKey, uuid.New(), owner.SigningPrivate)
	require.NoError(t, err)

	ownerSignKey, _ := owner.PublicIdentity()
	_, err = manager.AcceptDistribution(record, recipient, uuid.New(), ownerSignKey)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbiddenAccess, apperrors.CodeOf(err))
}

func TestCreateDistributionRejectsBadInput(t *testing.T) {
	manager := NewManager()

	owner, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	recipient, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	_, recipientEncKey := recipient.PublicIdentity()

	_, err = manager.CreateDistribution([]byte("short"), 0, uuid.New(), uuid.New(), recipientEncKey, uuid.New(), owner.SigningPrivate)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidKeyMaterial, apperrors.CodeOf(err))

	drk, err := crypto.GenerateRootKey()
	require.NoError(t, err)
	_, err = manager.CreateDistribution(drk, -1, uuid.New(), uuid.New(), recipientEncKey, uuid.New(), owner.SigningPrivate)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}
