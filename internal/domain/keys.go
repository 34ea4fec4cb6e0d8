package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdentityKey represents a user's long-term public identity keys.
// Only public halves are stored on the server - private keys never leave the client.
// SigningKey is an Ed25519 public key, EncryptionKey an X25519 public key,
// both base64 encoded.
// Maps to the CockroachDB identity_keys table.
type IdentityKey struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	SigningKey    string    `json:"signing_key" db:"signing_key"`
	EncryptionKey string    `json:"encryption_key" db:"encryption_key"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DocumentKeyRecord is a signed, per-recipient encrypted copy of a document
// root key for one epoch. Unique per (document_id, user_id, epoch); created
// once, never mutated, superseded by later epochs.
// EncryptedDRK is the root key sealed to the recipient's encryption key.
// Signature is a detached Ed25519 signature by SignedBy over CanonicalString.
// Maps to the CockroachDB document_key_records table.
type DocumentKeyRecord struct {
	DocumentID   uuid.UUID `json:"document_id" db:"document_id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Epoch        int64     `json:"epoch" db:"epoch"`
	EncryptedDRK string    `json:"encrypted_drk" db:"encrypted_drk"`
	SignedBy     uuid.UUID `json:"signed_by" db:"signed_by"`
	Signature    string    `json:"signature" db:"signature"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Validate rejects structurally incomplete records before any signature or
// decryption work happens.
func (r *DocumentKeyRecord) Validate() error {
	if r.DocumentID == uuid.Nil {
		return fmt.Errorf("key record: missing document id")
	}
	if r.UserID == uuid.Nil {
		return fmt.Errorf("key record: missing user id")
	}
	if r.Epoch < 0 {
		return fmt.Errorf("key record: epoch must be >= 0, got %d", r.Epoch)
	}
	if r.EncryptedDRK == "" {
		return fmt.Errorf("key record: missing encrypted root key")
	}
	if r.SignedBy == uuid.Nil {
		return fmt.Errorf("key record: missing signer id")
	}
	if r.Signature == "" {
		return fmt.Errorf("key record: missing signature")
	}
	return nil
}

// CanonicalString is the exact byte layout the distribution signature covers.
func (r *DocumentKeyRecord) CanonicalString() string {
	return fmt.Sprintf("%s|%s|%d|%s", r.DocumentID, r.UserID, r.Epoch, r.EncryptedDRK)
}

// KeysUploadRequest represents identity keys uploaded by a client during
// registration or device setup.
type KeysUploadRequest struct {
	SigningKey    string `json:"signing_key" binding:"required"`
	EncryptionKey string `json:"encryption_key" binding:"required"`
}
