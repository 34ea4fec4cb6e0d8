// Package sync reconciles a client's local block history against a
// server-delivered batch of block versions. Every version is verified against
// the hash chain and the root key of its own epoch before it is accepted;
// nothing is persisted on faith.
package sync

import (
	"context"
	"sort"
	stdsync "sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"securedocs-backend/internal/crypto"
	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/epoch"
	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/logger"
)

// LocalStore is the client-side persistence the reconciler delegates to
type LocalStore interface {
	// GetLatestLocalVersion returns the newest locally accepted version of a
	// block, or nil when the block is unknown locally.
	GetLatestLocalVersion(ctx context.Context, blockID string) (*domain.BlockVersion, error)
	PutVerifiedVersion(ctx context.Context, v *domain.BlockVersion) error
	GetLocalKeyRecords(ctx context.Context, documentID uuid.UUID) ([]*domain.DocumentKeyRecord, error)
}

// Reconciler validates server batches block by block. Acceptance is
// serialized per block id: chain validity requires a defined order, so two
// concurrent submissions must never both verify against a stale head.
// Different block ids reconcile independently.
type Reconciler struct {
	store   LocalStore
	manager *epoch.Manager

	mu         stdsync.Mutex
	blockLocks map[string]*stdsync.Mutex
}

// NewReconciler creates a new reconciler over a local store
func NewReconciler(store LocalStore, manager *epoch.Manager) *Reconciler {
	return &Reconciler{
		store:      store,
		manager:    manager,
		blockLocks: make(map[string]*stdsync.Mutex),
	}
}

// VerifyBatchInput carries one block's server-retrieved history slice plus
// the key records needed to decrypt it
type VerifyBatchInput struct {
	BlockID        string
	ServerVersions []*domain.BlockVersion
	KeyRecords     []*domain.DocumentKeyRecord
	// OwnerSigningKey is the document owner's base64 Ed25519 public key; the
	// signer of every ordinary key distribution.
	OwnerSigningKey string
	MyUserID        uuid.UUID
	MyKeys          *crypto.IdentityKeyPair
}

// VerifyBatchOutput lists the versions accepted and persisted, in order
type VerifyBatchOutput struct {
	Accepted []*domain.BlockVersion
}

// VerifyBatch verifies and applies a server batch for one block.
//
// Every key record is signature-checked and decrypted first; one forged
// record anywhere invalidates trust in the whole batch
// (SECURITY_BREACH_DETECTED) before any version is looked at. Versions are
// then walked in ascending version order from the local head: already-known
// versions are skipped (idempotent re-delivery), each new version must extend
// the chain (CHAIN_BROKEN otherwise) and must re-hash correctly under its
// epoch's key (KEY_NOT_FOUND / HASH_MISMATCH otherwise).
//
// On failure the versions accepted before the failing one remain accepted and
// are returned alongside the error: the batch truncates at the first failure.
func (r *Reconciler) VerifyBatch(ctx context.Context, input *VerifyBatchInput) (*VerifyBatchOutput, error) {
	unlock := r.lockBlock(input.BlockID)
	defer unlock()

	rootKeys, err := r.decryptKeyRecords(input)
	if err != nil {
		return &VerifyBatchOutput{}, err
	}

	versions := make([]*domain.BlockVersion, len(input.ServerVersions))
	copy(versions, input.ServerVersions)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })

	lastHash := domain.GenesisHash
	lastVersion := int64(0)
	if local, err := r.store.GetLatestLocalVersion(ctx, input.BlockID); err != nil {
		return &VerifyBatchOutput{}, apperrors.DatabaseError(err)
	} else if local != nil {
		lastHash = local.Hash
		lastVersion = local.Version
	}

	out := &VerifyBatchOutput{}
	for _, v := range versions {
		if v.Version <= lastVersion {
			// Already known locally; re-delivery is not an error
			continue
		}

		if v.PrevHash != lastHash {
			logger.Warn("sync batch rejected: chain discontinuity",
				zap.String("block_id", v.BlockID),
				zap.Int64("version", v.Version))
			return out, apperrors.ChainBrokenError(v.BlockID, v.Version)
		}

		drk, ok := rootKeys[v.Epoch]
		if !ok {
			return out, apperrors.KeyNotFoundError(v.Epoch)
		}

		computed, err := crypto.ComputeBlockHash(v, drk)
		if err != nil {
			return out, err
		}
		if computed != v.Hash {
			logger.Warn("sync batch rejected: hash mismatch",
				zap.String("block_id", v.BlockID),
				zap.Int64("version", v.Version))
			return out, apperrors.HashMismatchError(v.BlockID, v.Version)
		}

		if err := r.store.PutVerifiedVersion(ctx, v); err != nil {
			return out, apperrors.DatabaseError(err)
		}

		lastHash = v.Hash
		lastVersion = v.Version
		out.Accepted = append(out.Accepted, v)
	}

	return out, nil
}

// VerifyBlock checks a single incoming version against the local head.
// A version at or below the local head is a stale write from a concurrent
// editor (OLD_VERSION_BLOCK, recoverable); a hash that does not recompute is
// a corrupt block (CORRUPT_BLOCK, terminal).
func (r *Reconciler) VerifyBlock(ctx context.Context, incoming *domain.BlockVersion, drk []byte) error {
	unlock := r.lockBlock(incoming.BlockID)
	defer unlock()

	local, err := r.store.GetLatestLocalVersion(ctx, incoming.BlockID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if local != nil && incoming.Version <= local.Version {
		return apperrors.OldVersionBlockError(incoming.Version, local.Version)
	}

	computed, err := crypto.ComputeBlockHash(incoming, drk)
	if err != nil {
		return err
	}
	if computed != incoming.Hash {
		return apperrors.CorruptBlockError(incoming.BlockID)
	}

	return nil
}

// decryptKeyRecords verifies and opens every record, building the per-epoch
// root key map. The map is read-only once built.
func (r *Reconciler) decryptKeyRecords(input *VerifyBatchInput) (map[int64][]byte, error) {
	rootKeys := make(map[int64][]byte, len(input.KeyRecords))

	for _, record := range input.KeyRecords {
		drk, err := r.manager.AcceptDistribution(record, input.MyKeys, input.MyUserID, input.OwnerSigningKey)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.ErrCodeSignatureInvalid {
				// A forged key record anywhere invalidates the batch
				logger.Error("forged key record in sync batch",
					zap.String("document_id", record.DocumentID.String()),
					zap.Int64("epoch", record.Epoch))
				return nil, apperrors.SecurityBreachError("key record signature verification failed")
			}
			return nil, err
		}
		rootKeys[record.Epoch] = drk
	}

	return rootKeys, nil
}

func (r *Reconciler) lockBlock(blockID string) func() {
	r.mu.Lock()
	lock, ok := r.blockLocks[blockID]
	if !ok {
		lock = &stdsync.Mutex{}
		r.blockLocks[blockID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
