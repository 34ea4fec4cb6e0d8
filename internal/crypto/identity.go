package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"securedocs-backend/internal/domain"
	apperrors "securedocs-backend/pkg/errors"
)

// IdentityKeyPair holds a user's long-term key material: an Ed25519 pair for
// signing key distributions and an X25519 pair for receiving sealed root
// keys. Private halves live only in a client's unlocked memory; the server
// stores public halves in the identity-key directory.
type IdentityKeyPair struct {
	SigningPublic     ed25519.PublicKey
	SigningPrivate    ed25519.PrivateKey
	EncryptionPublic  *[32]byte
	EncryptionPrivate *[32]byte
}

// GenerateIdentityKeyPair creates fresh signing and encryption key pairs
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	encPub, encPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return &IdentityKeyPair{
		SigningPublic:     signPub,
		SigningPrivate:    signPriv,
		EncryptionPublic:  encPub,
		EncryptionPrivate: encPriv,
	}, nil
}

// PublicIdentity returns the base64 public halves in the directory format
func (k *IdentityKeyPair) PublicIdentity() (signingKey, encryptionKey string) {
	return base64.StdEncoding.EncodeToString(k.SigningPublic),
		base64.StdEncoding.EncodeToString(k.EncryptionPublic[:])
}

// GenerateRootKey creates a fresh 32-byte document root key
func GenerateRootKey() ([]byte, error) {
	drk := make([]byte, DRKSize)
	if _, err := rand.Read(drk); err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}
	return drk, nil
}

// SealRootKey encrypts a document root key to a recipient's base64 X25519
// public key using an anonymous NaCl box. Only the holder of the matching
// private key can open it.
func SealRootKey(drk []byte, recipientEncryptionKey string) (string, error) {
	if len(drk) != DRKSize {
		return "", apperrors.InvalidKeyMaterialError("document root key must be 32 bytes")
	}

	pub, err := decodeBoxKey(recipientEncryptionKey)
	if err != nil {
		return "", apperrors.InvalidKeyMaterialError("malformed recipient encryption key")
	}

	sealed, err := box.SealAnonymous(nil, drk, pub, rand.Reader)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to seal root key", err)
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// SignRecord produces the detached base64 signature over a key record's
// canonical string
func SignRecord(record *domain.DocumentKeyRecord, signingKey ed25519.PrivateKey) string {
	sig := ed25519.Sign(signingKey, []byte(record.CanonicalString()))
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifiedKeyRecord wraps a DocumentKeyRecord whose distribution signature
// has been checked against the claimed signer. The unexported field means the
// only way to obtain one is through VerifyRecordSignature, which makes root
// key decryption structurally unreachable for unverified records.
type VerifiedKeyRecord struct {
	record *domain.DocumentKeyRecord
}

// Record returns the verified record
func (v VerifiedKeyRecord) Record() *domain.DocumentKeyRecord {
	return v.record
}

// VerifyRecordSignature checks record.Signature over the canonical string
// against the signer's base64 Ed25519 public key. On failure the record must
// be discarded; no decryption path accepts an unverified record.
func VerifyRecordSignature(record *domain.DocumentKeyRecord, signerSigningKey string) (VerifiedKeyRecord, error) {
	if err := record.Validate(); err != nil {
		return VerifiedKeyRecord{}, apperrors.ValidationError(err.Error())
	}

	pub, err := base64.StdEncoding.DecodeString(signerSigningKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return VerifiedKeyRecord{}, apperrors.InvalidKeyMaterialError("malformed signer public key")
	}

	sig, err := base64.StdEncoding.DecodeString(record.Signature)
	if err != nil {
		return VerifiedKeyRecord{}, apperrors.SignatureInvalidError("malformed key record signature")
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(record.CanonicalString()), sig) {
		return VerifiedKeyRecord{}, apperrors.SignatureInvalidError(
			fmt.Sprintf("key record signature does not verify against signer %s", record.SignedBy))
	}

	return VerifiedKeyRecord{record: record}, nil
}

// OpenRootKey decrypts the sealed root key of a verified record with the
// recipient's key pair. Requires a VerifiedKeyRecord: signature verification
// always happens first.
func OpenRootKey(verified VerifiedKeyRecord, recipient *IdentityKeyPair) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(verified.record.EncryptedDRK)
	if err != nil {
		return nil, apperrors.KeyDecryptionFailedError(err)
	}

	drk, ok := box.OpenAnonymous(nil, sealed, recipient.EncryptionPublic, recipient.EncryptionPrivate)
	if !ok {
		return nil, apperrors.KeyDecryptionFailedError(nil)
	}
	if len(drk) != DRKSize {
		return nil, apperrors.InvalidKeyMaterialError("unsealed root key has wrong length")
	}

	return drk, nil
}

func decodeBoxKey(b64 string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32-byte key, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
