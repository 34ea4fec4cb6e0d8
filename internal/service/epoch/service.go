package epoch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"securedocs-backend/internal/crypto"
	"securedocs-backend/internal/domain"
	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/logger"
	"securedocs-backend/pkg/metrics"
)

// KeyRecordRepository persists signed key distribution records
type KeyRecordRepository interface {
	SaveRecords(ctx context.Context, records []*domain.DocumentKeyRecord) error
	GetRecordsForUser(ctx context.Context, documentID, userID uuid.UUID) ([]*domain.DocumentKeyRecord, error)
	GetRecord(ctx context.Context, documentID, userID uuid.UUID, epoch int64) (*domain.DocumentKeyRecord, error)
}

// DocumentRepository is the slice of document storage the rotation flow needs
type DocumentRepository interface {
	GetDocument(ctx context.Context, documentID uuid.UUID) (*domain.Document, error)
	AdvanceEpoch(ctx context.Context, documentID uuid.UUID, fromEpoch int64) error
	GetMembers(ctx context.Context, documentID uuid.UUID) ([]*domain.DocumentMember, error)
}

// IdentityKeyRepository resolves users' public identity keys
type IdentityKeyRepository interface {
	GetIdentityKey(ctx context.Context, userID uuid.UUID) (*domain.IdentityKey, error)
}

// Service is the server-side half of key distribution. Clients produce the
// records (the server never sees a plaintext root key); this service checks
// them against the stored state and persists them.
type Service struct {
	keyRecordRepo KeyRecordRepository
	documentRepo  DocumentRepository
	identityRepo  IdentityKeyRepository
}

// NewService creates a new epoch key service
func NewService(keyRecordRepo KeyRecordRepository, documentRepo DocumentRepository, identityRepo IdentityKeyRepository) *Service {
	return &Service{
		keyRecordRepo: keyRecordRepo,
		documentRepo:  documentRepo,
		identityRepo:  identityRepo,
	}
}

// StoreInitialDistribution persists the epoch-0 key records created alongside
// a new document.
func (s *Service) StoreInitialDistribution(ctx context.Context, documentID, ownerID uuid.UUID, records []*domain.DocumentKeyRecord) error {
	return s.storeDistribution(ctx, documentID, ownerID, 0, records)
}

// StoreRotation accepts the record set for the next epoch. The epoch must be
// exactly current+1, every record must be signed by the initiator, and every
// remaining member must receive one. Prior epochs' records are superseded,
// never deleted, so old versions stay decryptable for their holders.
func (s *Service) StoreRotation(ctx context.Context, documentID, initiatorID uuid.UUID, records []*domain.DocumentKeyRecord) error {
	doc, err := s.documentRepo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.storeDistribution(ctx, documentID, initiatorID, doc.CurrentEpoch+1, records); err != nil {
		return err
	}

	if err := s.documentRepo.AdvanceEpoch(ctx, documentID, doc.CurrentEpoch); err != nil {
		return err
	}

	metrics.KeyRotationsTotal.Inc()
	logger.Info("document root key rotated",
		zap.String("document_id", documentID.String()),
		zap.Int64("epoch", doc.CurrentEpoch+1),
		zap.Int("recipients", len(records)))

	return nil
}

// StoreShareRecord persists a single key record for a newly added member at
// the document's current epoch. Sharing never rotates the key; the new member
// simply receives the current one.
func (s *Service) StoreShareRecord(ctx context.Context, documentID, ownerID uuid.UUID, record *domain.DocumentKeyRecord) error {
	doc, err := s.documentRepo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != ownerID {
		return apperrors.ForbiddenAccessError("only the document owner may distribute root keys")
	}
	if record.DocumentID != documentID {
		return apperrors.ValidationError("key record references a different document")
	}
	if record.Epoch != doc.CurrentEpoch {
		return apperrors.ValidationError(
			fmt.Sprintf("key record epoch %d does not match current epoch %d", record.Epoch, doc.CurrentEpoch))
	}
	if record.SignedBy != ownerID {
		return apperrors.SignatureInvalidError("key record claims a signer other than the owner")
	}

	ownerKey, err := s.identityRepo.GetIdentityKey(ctx, ownerID)
	if err != nil {
		return err
	}
	if _, err := crypto.VerifyRecordSignature(record, ownerKey.SigningKey); err != nil {
		return err
	}

	return s.keyRecordRepo.SaveRecords(ctx, []*domain.DocumentKeyRecord{record})
}

// GetKeyRecords returns every key record issued to a user for a document,
// one per epoch the user was a member of.
func (s *Service) GetKeyRecords(ctx context.Context, documentID, userID uuid.UUID) ([]*domain.DocumentKeyRecord, error) {
	return s.keyRecordRepo.GetRecordsForUser(ctx, documentID, userID)
}

func (s *Service) storeDistribution(ctx context.Context, documentID, initiatorID uuid.UUID, expectedEpoch int64, records []*domain.DocumentKeyRecord) error {
	doc, err := s.documentRepo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != initiatorID {
		return apperrors.ForbiddenAccessError("only the document owner may distribute root keys")
	}

	if len(records) == 0 {
		return apperrors.ValidationError("distribution must contain at least one key record")
	}

	initiatorKey, err := s.identityRepo.GetIdentityKey(ctx, initiatorID)
	if err != nil {
		return err
	}

	covered := make(map[uuid.UUID]bool, len(records))
	for _, record := range records {
		if record.DocumentID != documentID {
			return apperrors.ValidationError("key record references a different document")
		}
		if record.Epoch != expectedEpoch {
			return apperrors.ValidationError(
				fmt.Sprintf("key record epoch %d does not match expected epoch %d", record.Epoch, expectedEpoch))
		}
		if record.SignedBy != initiatorID {
			return apperrors.SignatureInvalidError("key record claims a signer other than the initiator")
		}
		// The server verifies signatures too; a forged record must never be
		// persisted where a recipient could trust it.
		if _, err := crypto.VerifyRecordSignature(record, initiatorKey.SigningKey); err != nil {
			return err
		}
		covered[record.UserID] = true
	}

	members, err := s.documentRepo.GetMembers(ctx, documentID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if !covered[member.UserID] {
			return apperrors.ValidationError(
				fmt.Sprintf("member %s has no key record for epoch %d", member.UserID, expectedEpoch))
		}
	}

	if err := s.keyRecordRepo.SaveRecords(ctx, records); err != nil {
		return err
	}
	metrics.KeyRecordsStoredTotal.Add(float64(len(records)))

	return nil
}
