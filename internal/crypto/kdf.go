// Package crypto implements the encrypted-block primitives: per-block key
// derivation from a document root key, authenticated block encryption, the
// version-to-version integrity hash chain, and the asymmetric operations used
// to distribute root keys between users.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"

	apperrors "securedocs-backend/pkg/errors"
)

// DRKSize is the byte length of a document root key
const DRKSize = 32

// KeyPurpose selects which per-block key to derive from a root key
type KeyPurpose string

const (
	// PurposeCipher derives the AES-256-GCM content key
	PurposeCipher KeyPurpose = "cipher"
	// PurposeIntegrity derives the HMAC-SHA-256 hash-chain key
	PurposeIntegrity KeyPurpose = "integrity"
)

// Derivation labels. The cipher and integrity keys for the same block must be
// cryptographically independent even though both come from the same root key.
const (
	labelBlockCipher    = "block-encryption"
	labelBlockIntegrity = "block-integrity"
)

// DeriveKey derives a purpose-scoped 32-byte key for one block from a
// document root key: HMAC-SHA-256(drk, label|blockID). Deterministic, so
// verification re-derives the exact key the author used.
func DeriveKey(drk []byte, blockID string, purpose KeyPurpose) ([]byte, error) {
	if len(drk) != DRKSize {
		return nil, apperrors.InvalidKeyMaterialError("document root key must be 32 bytes")
	}

	label := labelBlockCipher
	if purpose == PurposeIntegrity {
		label = labelBlockIntegrity
	}

	mac := hmac.New(sha256.New, drk)
	mac.Write([]byte(label))
	mac.Write([]byte("|"))
	mac.Write([]byte(blockID))
	return mac.Sum(nil), nil
}
