package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	apperrors "securedocs-backend/pkg/errors"
)

// IVSize is the AES-GCM nonce length in bytes
const IVSize = 12

// EncryptBlock encrypts a block's plaintext under the key derived for
// blockID. A fresh random IV is generated on every call; an IV is never
// reused for a given key. Returns base64-encoded ciphertext (with the GCM tag
// appended) and IV.
func EncryptBlock(plaintext string, drk []byte, blockID string) (cipherText, iv string, err error) {
	key, err := DeriveKey(drk, blockID, PurposeCipher)
	if err != nil {
		return "", "", err
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to generate iv", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

// DecryptBlock reverses EncryptBlock. Any tampering with the ciphertext or
// IV, or a key derived from the wrong root key or block id, fails the GCM tag
// check. No partial plaintext is ever returned.
func DecryptBlock(cipherText, iv string, drk []byte, blockID string) (string, error) {
	key, err := DeriveKey(drk, blockID, PurposeCipher)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", apperrors.DecryptionFailedError()
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", apperrors.DecryptionFailedError()
	}
	if len(nonce) != IVSize {
		return "", apperrors.DecryptionFailedError()
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperrors.DecryptionFailedError()
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, fmt.Sprintf("failed to init cipher: %v", err), err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, fmt.Sprintf("failed to init gcm: %v", err), err)
	}
	return aead, nil
}
