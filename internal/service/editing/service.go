// Package editing implements the edit-session protocol: a block is either
// unlocked or locked by one editor until a TTL expires. The lock service
// enforces actual mutual exclusion via expiry; what this service reports is
// informational for UI feedback and retry.
package editing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/logger"
	"securedocs-backend/pkg/metrics"
)

// LockStatus describes the current holder of a block's edit lock
type LockStatus struct {
	BlockID   string    `json:"block_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LockCoordinator is the external TTL lock service. Acquiring an expired or
// self-held lock refreshes it; expiry is time-based, never explicit, which
// bounds the damage from a crashed or disconnected editor.
type LockCoordinator interface {
	// TryAcquire attempts to take or refresh the lock. When the lock is held
	// by someone else it returns granted=false and the current status.
	TryAcquire(ctx context.Context, blockID string, ownerID uuid.UUID, ttl time.Duration) (status *LockStatus, granted bool, err error)
	// Get returns the current status, or nil when unlocked
	Get(ctx context.Context, blockID string) (*LockStatus, error)
	// Release drops the lock if held by expectedOwner; force drops it
	// unconditionally (document-owner override)
	Release(ctx context.Context, blockID string, expectedOwner uuid.UUID, force bool) error
}

// Service arbitrates edit sessions over a lock coordinator
type Service struct {
	locks LockCoordinator
	ttl   time.Duration
}

// NewService creates a new edit-session service
func NewService(locks LockCoordinator, ttl time.Duration) *Service {
	return &Service{locks: locks, ttl: ttl}
}

// Acquire takes or refreshes the edit lock on a block. If another editor
// holds an unexpired lock it fails BLOCK_LOCKED, reporting the owner.
func (s *Service) Acquire(ctx context.Context, blockID string, userID uuid.UUID) (*LockStatus, error) {
	status, granted, err := s.locks.TryAcquire(ctx, blockID, userID, s.ttl)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "lock service unavailable", err)
	}
	if !granted {
		metrics.LockAcquisitionsTotal.WithLabelValues("contested").Inc()
		return nil, apperrors.BlockLockedError(status.OwnerID.String())
	}

	metrics.LockAcquisitionsTotal.WithLabelValues("granted").Inc()
	logger.Debug("edit lock acquired",
		zap.String("block_id", blockID),
		zap.String("user_id", userID.String()))

	return status, nil
}

// Release drops the lock. The lock owner may release their own lock and the
// document owner may release anyone's; everyone else gets FORBIDDEN_ACCESS.
// Releasing an unlocked block is a no-op success.
func (s *Service) Release(ctx context.Context, blockID string, requesterID, documentOwnerID uuid.UUID) error {
	status, err := s.locks.Get(ctx, blockID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "lock service unavailable", err)
	}
	if status == nil {
		return nil
	}

	if status.OwnerID == requesterID {
		return s.locks.Release(ctx, blockID, requesterID, false)
	}
	if requesterID == documentOwnerID {
		metrics.LockOverrideReleasesTotal.Inc()
		return s.locks.Release(ctx, blockID, status.OwnerID, true)
	}

	return apperrors.ForbiddenAccessError("only the lock owner or the document owner may release an edit lock")
}

// Check returns the current lock status of a block, or nil when unlocked
func (s *Service) Check(ctx context.Context, blockID string) (*LockStatus, error) {
	status, err := s.locks.Get(ctx, blockID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "lock service unavailable", err)
	}
	return status, nil
}

// EnsureWritable checks that userID may submit the next version of a block
// in a live editing session: the block must be unlocked or locked by them.
func (s *Service) EnsureWritable(ctx context.Context, blockID string, userID uuid.UUID) error {
	status, err := s.locks.Get(ctx, blockID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "lock service unavailable", err)
	}
	if status != nil && status.OwnerID != userID {
		return apperrors.BlockLockedError(status.OwnerID.String())
	}
	return nil
}
