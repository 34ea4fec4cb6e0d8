// Package document manages document lifecycle and membership. Membership
// changes drive key distribution: sharing hands the new member the current
// epoch's key record, revocation forces a rotation so the revoked member
// never learns keys issued after their removal.
package document

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/epoch"
	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/logger"
	"securedocs-backend/pkg/pagination"
)

// Repository is the document and membership store
type Repository interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, documentID uuid.UUID) (*domain.Document, error)
	ListDocumentsForUser(ctx context.Context, userID uuid.UUID, params *pagination.Params) ([]*domain.Document, int64, error)
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error

	AddMember(ctx context.Context, member *domain.DocumentMember) error
	GetMember(ctx context.Context, documentID, userID uuid.UUID) (*domain.DocumentMember, error)
	GetMembers(ctx context.Context, documentID uuid.UUID) ([]*domain.DocumentMember, error)
	RemoveMember(ctx context.Context, documentID, userID uuid.UUID) error
}

// Service handles document lifecycle and membership
type Service struct {
	repo  Repository
	epoch *epoch.Service
}

// NewService creates a new document service
func NewService(repo Repository, epochService *epoch.Service) *Service {
	return &Service{repo: repo, epoch: epochService}
}

// CreateDocumentInput carries the new document and its epoch-0 key records.
// The client generates the document id and root key, seals the key to each
// initial member, and signs the records over that id before calling; the
// server never sees the key itself and cannot re-target signed records.
type CreateDocumentInput struct {
	DocumentID uuid.UUID
	OwnerID    uuid.UUID
	Title      string
	KeyRecords []*domain.DocumentKeyRecord
}

// CreateDocument creates a document at epoch 0 and stores its initial key
// distribution. At minimum the owner must receive a record.
func (s *Service) CreateDocument(ctx context.Context, input *CreateDocumentInput) (*domain.Document, error) {
	if input.DocumentID == uuid.Nil {
		return nil, apperrors.MissingFieldError("document_id")
	}
	if input.Title == "" {
		return nil, apperrors.MissingFieldError("title")
	}
	if len(input.KeyRecords) == 0 {
		return nil, apperrors.ValidationError("document creation requires an initial key distribution")
	}

	doc := &domain.Document{
		DocumentID:   input.DocumentID,
		OwnerID:      input.OwnerID,
		Title:        input.Title,
		CurrentEpoch: 0,
	}

	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if err := s.repo.AddMember(ctx, &domain.DocumentMember{
		DocumentID: doc.DocumentID,
		UserID:     input.OwnerID,
		Role:       domain.RoleOwner,
	}); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if err := s.epoch.StoreInitialDistribution(ctx, doc.DocumentID, input.OwnerID, input.KeyRecords); err != nil {
		return nil, err
	}

	logger.Info("document created",
		zap.String("document_id", doc.DocumentID.String()),
		zap.String("owner_id", input.OwnerID.String()))

	return doc, nil
}

// GetDocument returns a document the requester is a member of
func (s *Service) GetDocument(ctx context.Context, documentID, requesterID uuid.UUID) (*domain.Document, error) {
	member, err := s.repo.GetMember(ctx, documentID, requesterID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.ForbiddenAccessError("user is not a member of this document")
	}
	return s.repo.GetDocument(ctx, documentID)
}

// ListDocuments returns the documents the user is a member of, paginated
func (s *Service) ListDocuments(ctx context.Context, userID uuid.UUID, params *pagination.Params) ([]*domain.Document, *pagination.Meta, error) {
	docs, total, err := s.repo.ListDocumentsForUser(ctx, userID, params)
	if err != nil {
		return nil, nil, apperrors.DatabaseError(err)
	}
	return docs, pagination.NewMeta(params, total), nil
}

// ShareInput carries the new member plus the key record the owner created for
// them at the current epoch.
type ShareInput struct {
	DocumentID uuid.UUID
	OwnerID    uuid.UUID
	UserID     uuid.UUID
	Role       string
	KeyRecord  *domain.DocumentKeyRecord
}

// ShareDocument adds a member and stores their key record for the current
// epoch. No rotation happens; granting access is not a trust event.
func (s *Service) ShareDocument(ctx context.Context, input *ShareInput) error {
	if input.Role != domain.RoleEditor && input.Role != domain.RoleViewer {
		return apperrors.ValidationError("role must be editor or viewer")
	}
	if input.KeyRecord == nil {
		return apperrors.ValidationError("sharing requires a key record for the new member")
	}
	if input.KeyRecord.UserID != input.UserID {
		return apperrors.ValidationError("key record recipient does not match the new member")
	}

	doc, err := s.repo.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != input.OwnerID {
		return apperrors.ForbiddenAccessError("only the document owner may share a document")
	}

	existing, err := s.repo.GetMember(ctx, input.DocumentID, input.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.ConflictError("user is already a member of this document")
	}

	if err := s.epoch.StoreShareRecord(ctx, input.DocumentID, input.OwnerID, input.KeyRecord); err != nil {
		return err
	}

	if err := s.repo.AddMember(ctx, &domain.DocumentMember{
		DocumentID: input.DocumentID,
		UserID:     input.UserID,
		Role:       input.Role,
	}); err != nil {
		return apperrors.DatabaseError(err)
	}

	logger.Info("document shared",
		zap.String("document_id", input.DocumentID.String()),
		zap.String("user_id", input.UserID.String()),
		zap.String("role", input.Role))

	return nil
}

// RevokeInput carries the member to remove and the rotation record set the
// owner created for every remaining member under the next epoch.
type RevokeInput struct {
	DocumentID      uuid.UUID
	OwnerID         uuid.UUID
	UserID          uuid.UUID
	RotationRecords []*domain.DocumentKeyRecord
}

// RevokeAccess removes a member and rotates the root key. The member is
// removed first so the rotation's coverage check runs against the remaining
// membership; the revoked user keeps their old-epoch records and loses
// nothing they already had, but never receives the new key.
func (s *Service) RevokeAccess(ctx context.Context, input *RevokeInput) error {
	doc, err := s.repo.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != input.OwnerID {
		return apperrors.ForbiddenAccessError("only the document owner may revoke access")
	}
	if input.UserID == input.OwnerID {
		return apperrors.ValidationError("the document owner cannot revoke themselves")
	}

	member, err := s.repo.GetMember(ctx, input.DocumentID, input.UserID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperrors.NotFoundError("Document member")
	}

	if err := s.repo.RemoveMember(ctx, input.DocumentID, input.UserID); err != nil {
		return apperrors.DatabaseError(err)
	}

	if err := s.epoch.StoreRotation(ctx, input.DocumentID, input.OwnerID, input.RotationRecords); err != nil {
		return err
	}

	logger.Info("document access revoked",
		zap.String("document_id", input.DocumentID.String()),
		zap.String("user_id", input.UserID.String()))

	return nil
}

// DeleteDocument removes a document, its membership, key records and block
// history. Owner only.
func (s *Service) DeleteDocument(ctx context.Context, documentID, requesterID uuid.UUID) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != requesterID {
		return apperrors.ForbiddenAccessError("only the document owner may delete a document")
	}
	return s.repo.DeleteDocument(ctx, documentID)
}

// GetMembers lists a document's members; any member may see the roster
func (s *Service) GetMembers(ctx context.Context, documentID, requesterID uuid.UUID) ([]*domain.DocumentMember, error) {
	member, err := s.repo.GetMember(ctx, documentID, requesterID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.ForbiddenAccessError("user is not a member of this document")
	}
	return s.repo.GetMembers(ctx, documentID)
}
