// Package block handles server-side block version submission and retrieval.
// The server never holds a document root key, so it enforces everything that
// does not require one: version continuity, prevHash linkage, epoch currency,
// and edit-lock state. Content verification happens on clients during sync.
package block

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/editing"
	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/logger"
	"securedocs-backend/pkg/metrics"
)

// VersionRepository is the append-only block version store
type VersionRepository interface {
	SaveVersion(ctx context.Context, v *domain.BlockVersion) error
	// GetLatestVersion returns the newest version of a block, or nil when the
	// block does not exist
	GetLatestVersion(ctx context.Context, documentID uuid.UUID, blockID string) (*domain.BlockVersion, error)
	// GetLatestVersions returns the newest version of every block in a document
	GetLatestVersions(ctx context.Context, documentID uuid.UUID) ([]*domain.BlockVersion, error)
	GetHistory(ctx context.Context, documentID uuid.UUID, blockID string, sinceVersion int64, limit int) ([]*domain.BlockVersion, error)
	// DeleteBlock removes a block's entire history; single versions are never
	// deleted
	DeleteBlock(ctx context.Context, documentID uuid.UUID, blockID string) error
}

// DocumentReader is the slice of document storage submission needs
type DocumentReader interface {
	GetDocument(ctx context.Context, documentID uuid.UUID) (*domain.Document, error)
	GetMember(ctx context.Context, documentID, userID uuid.UUID) (*domain.DocumentMember, error)
}

// Publisher fans out accepted versions to live collaborators
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Service handles block submission and retrieval
type Service struct {
	versions  VersionRepository
	documents DocumentReader
	sessions  *editing.Service
	publisher Publisher
}

// NewService creates a new block service
func NewService(versions VersionRepository, documents DocumentReader, sessions *editing.Service, publisher Publisher) *Service {
	return &Service{
		versions:  versions,
		documents: documents,
		sessions:  sessions,
		publisher: publisher,
	}
}

// VersionEvent is the pub/sub payload for an accepted block version
type VersionEvent struct {
	Type       string               `json:"type"`
	DocumentID uuid.UUID            `json:"document_id"`
	Version    *domain.BlockVersion `json:"version,omitempty"`
	BlockID    string               `json:"block_id,omitempty"`
}

// SubmitVersion appends a new version to a block's history. The version must
// extend the current head exactly: version = head+1 and prevHash = head.hash
// (genesis for a new block). Stale versions from concurrent editors fail
// OLD_VERSION_BLOCK; anything that does not link fails CHAIN_BROKEN. The
// block must not be edit-locked by another user, and the version must be
// encrypted under the document's current epoch.
func (s *Service) SubmitVersion(ctx context.Context, authorID uuid.UUID, v *domain.BlockVersion) (*domain.BlockVersion, error) {
	saved, err := s.submitVersion(ctx, authorID, v)
	if err != nil {
		metrics.BlockVersionsRejectedTotal.WithLabelValues(
			metrics.RejectionReason(string(apperrors.CodeOf(err)))).Inc()
		return nil, err
	}
	metrics.BlockVersionsAcceptedTotal.Inc()
	return saved, nil
}

func (s *Service) submitVersion(ctx context.Context, authorID uuid.UUID, v *domain.BlockVersion) (*domain.BlockVersion, error) {
	if err := v.Validate(); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	doc, err := s.documents.GetDocument(ctx, v.DocumentID)
	if err != nil {
		return nil, err
	}

	member, err := s.documents.GetMember(ctx, v.DocumentID, authorID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.CanEdit() {
		return nil, apperrors.ForbiddenAccessError("user may not edit this document")
	}

	if err := s.sessions.EnsureWritable(ctx, v.BlockID, authorID); err != nil {
		return nil, err
	}

	if v.Epoch != doc.CurrentEpoch {
		return nil, apperrors.ConflictError(
			fmt.Sprintf("version encrypted under epoch %d but document is at epoch %d", v.Epoch, doc.CurrentEpoch))
	}

	head, err := s.versions.GetLatestVersion(ctx, v.DocumentID, v.BlockID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if head == nil {
		if v.Version != 1 {
			return nil, apperrors.ChainBrokenError(v.BlockID, v.Version)
		}
	} else {
		if v.Version <= head.Version {
			return nil, apperrors.OldVersionBlockError(v.Version, head.Version)
		}
		if v.Version != head.Version+1 || v.PrevHash != head.Hash {
			return nil, apperrors.ChainBrokenError(v.BlockID, v.Version)
		}
	}

	if err := s.versions.SaveVersion(ctx, v); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	s.publish(ctx, v.DocumentID, &VersionEvent{
		Type:       "block_version",
		DocumentID: v.DocumentID,
		Version:    v,
	})

	logger.Debug("block version accepted",
		zap.String("block_id", v.BlockID),
		zap.Int64("version", v.Version),
		zap.String("document_id", v.DocumentID.String()))

	return v, nil
}

// GetBlocks returns the latest version of every block in a document
func (s *Service) GetBlocks(ctx context.Context, documentID, userID uuid.UUID) ([]*domain.BlockVersion, error) {
	if err := s.requireMember(ctx, documentID, userID); err != nil {
		return nil, err
	}
	versions, err := s.versions.GetLatestVersions(ctx, documentID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return versions, nil
}

// GetHistory returns a block's versions above sinceVersion, ascending, capped
// at limit. Clients use it to fetch the sync batch that extends their local
// head.
func (s *Service) GetHistory(ctx context.Context, documentID, userID uuid.UUID, blockID string, sinceVersion int64, limit int) ([]*domain.BlockVersion, error) {
	if err := s.requireMember(ctx, documentID, userID); err != nil {
		return nil, err
	}
	versions, err := s.versions.GetHistory(ctx, documentID, blockID, sinceVersion, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return versions, nil
}

// GetLatestVersion returns the head of one block's history
func (s *Service) GetLatestVersion(ctx context.Context, documentID, userID uuid.UUID, blockID string) (*domain.BlockVersion, error) {
	if err := s.requireMember(ctx, documentID, userID); err != nil {
		return nil, err
	}
	head, err := s.versions.GetLatestVersion(ctx, documentID, blockID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if head == nil {
		return nil, apperrors.BlockNotFoundError()
	}
	return head, nil
}

// DeleteBlock removes a block and its whole history. Owner only.
func (s *Service) DeleteBlock(ctx context.Context, documentID, requesterID uuid.UUID, blockID string) error {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != requesterID {
		return apperrors.ForbiddenAccessError("only the document owner may delete blocks")
	}

	if err := s.versions.DeleteBlock(ctx, documentID, blockID); err != nil {
		return apperrors.DatabaseError(err)
	}

	s.publish(ctx, documentID, &VersionEvent{
		Type:       "block_deleted",
		DocumentID: documentID,
		BlockID:    blockID,
	})

	return nil
}

func (s *Service) requireMember(ctx context.Context, documentID, userID uuid.UUID) error {
	member, err := s.documents.GetMember(ctx, documentID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperrors.ForbiddenAccessError("user is not a member of this document")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, documentID uuid.UUID, event *VersionEvent) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal version event", zap.Error(err))
		return
	}
	channel := fmt.Sprintf("document:%s", documentID)
	if err := s.publisher.Publish(ctx, channel, payload); err != nil {
		// Fan-out is best effort; the version is already persisted
		logger.Warn("failed to publish version event", zap.Error(err))
	}
}
