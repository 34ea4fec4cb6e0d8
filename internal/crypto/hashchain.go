package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"securedocs-backend/internal/domain"
	apperrors "securedocs-backend/pkg/errors"
)

// DRKResolver returns the document root key for a given epoch. A chain may
// span a rotation, so each version is checked against the key of its own
// epoch while prevHash continuity threads across the boundary.
type DRKResolver func(epoch int64) ([]byte, bool)

// StaticResolver wraps a single root key as a resolver for single-epoch chains
func StaticResolver(drk []byte) DRKResolver {
	return func(int64) ([]byte, bool) { return drk, true }
}

// ComputeBlockHash computes the keyed integrity hash of one block version:
// HMAC-SHA-256 over the canonical field concatenation, keyed by the integrity
// key derived for the version's block id. An absent prevHash is treated as
// the genesis sentinel.
func ComputeBlockHash(v *domain.BlockVersion, drk []byte) (string, error) {
	key, err := DeriveKey(drk, v.BlockID, PurposeIntegrity)
	if err != nil {
		return "", err
	}

	canonical := v.CanonicalString()
	if v.PrevHash == "" {
		withGenesis := *v
		withGenesis.PrevHash = domain.GenesisHash
		canonical = withGenesis.CanonicalString()
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifyChain validates a full block history starting from genesis. See
// VerifyChainFrom for the semantics.
func VerifyChain(versions []*domain.BlockVersion, resolve DRKResolver) error {
	return VerifyChainFrom(domain.GenesisHash, versions, resolve)
}

// VerifyChainFrom walks versions in the given order (which must be ascending
// by version) and checks, for each one, that its prevHash equals the running
// hash and that its stored hash matches a recomputation under the root key of
// its epoch. seedHash is the hash of the version immediately preceding the
// slice, or the genesis sentinel for a full history.
//
// Failures are terminal and identify the offending version: CHAIN_BROKEN for
// a prevHash discontinuity, KEY_NOT_FOUND when the resolver has no key for a
// version's epoch, HASH_MISMATCH when the recomputed hash differs.
func VerifyChainFrom(seedHash string, versions []*domain.BlockVersion, resolve DRKResolver) error {
	lastHash := seedHash

	for _, v := range versions {
		if v.PrevHash != lastHash {
			return apperrors.ChainBrokenError(v.BlockID, v.Version)
		}

		drk, ok := resolve(v.Epoch)
		if !ok {
			return apperrors.KeyNotFoundError(v.Epoch)
		}

		computed, err := ComputeBlockHash(v, drk)
		if err != nil {
			return err
		}
		if !hmacEqual(computed, v.Hash) {
			return apperrors.HashMismatchError(v.BlockID, v.Version)
		}

		lastHash = v.Hash
	}

	return nil
}

// hmacEqual compares two base64 MACs in constant time
func hmacEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
