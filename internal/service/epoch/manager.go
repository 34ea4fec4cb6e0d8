// Package epoch manages document root key distribution: creating, signing,
// and accepting per-recipient encrypted copies of a DRK, and the epoch
// rotation bookkeeping that follows membership changes.
package epoch

import (
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"

	"securedocs-backend/internal/crypto"
	"securedocs-backend/internal/domain"
	apperrors "securedocs-backend/pkg/errors"
)

// Manager performs the client-side key distribution operations. It is
// stateless; all key material arrives as arguments and is never retained.
type Manager struct {
	// open is crypto.OpenRootKey in production. Swappable so tests can
	// observe that rejected records never reach decryption.
	open func(crypto.VerifiedKeyRecord, *crypto.IdentityKeyPair) ([]byte, error)
}

// NewManager creates a new key distribution manager
func NewManager() *Manager {
	return &Manager{open: crypto.OpenRootKey}
}

// CreateDistribution encrypts a document root key for one recipient and
// signs the resulting record. Only the document owner (or a rotation
// authority validated by the caller) should invoke this.
func (m *Manager) CreateDistribution(drk []byte, epoch int64, documentID, recipientID uuid.UUID, recipientEncryptionKey string, signerID uuid.UUID, signerKey ed25519.PrivateKey) (*domain.DocumentKeyRecord, error) {
	if epoch < 0 {
		return nil, apperrors.ValidationError("epoch must be >= 0")
	}

	sealed, err := crypto.SealRootKey(drk, recipientEncryptionKey)
	if err != nil {
		return nil, err
	}

	record := &domain.DocumentKeyRecord{
		DocumentID:   documentID,
		UserID:       recipientID,
		Epoch:        epoch,
		EncryptedDRK: sealed,
		SignedBy:     signerID,
		CreatedAt:    time.Now().UTC(),
	}
	record.Signature = crypto.SignRecord(record, signerKey)

	return record, nil
}

// AcceptDistribution verifies a key record's signature against the claimed
// signer and, only then, decrypts the root key with the recipient's private
// key. Fail-closed: a record whose signature does not verify is discarded
// before any decryption work. Re-accepting the same record yields the same
// root key.
func (m *Manager) AcceptDistribution(record *domain.DocumentKeyRecord, recipient *crypto.IdentityKeyPair, myUserID uuid.UUID, signerSigningKey string) ([]byte, error) {
	if record.UserID != myUserID {
		return nil, apperrors.ForbiddenAccessError("key record was not issued to this user")
	}

	verified, err := crypto.VerifyRecordSignature(record, signerSigningKey)
	if err != nil {
		return nil, err
	}

	drk, err := m.open(verified, recipient)
	if err != nil {
		return nil, err
	}

	return drk, nil
}
