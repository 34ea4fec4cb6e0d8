// Package archive writes encrypted block history snapshots to object storage.
// Snapshots hold cipher text only; they are as opaque to the archive as they
// are to the document store, and restoring one still requires the reader to
// hold key records for the epochs it spans.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"securedocs-backend/internal/domain"
	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/logger"
)

// VersionReader is the slice of block storage a snapshot needs
type VersionReader interface {
	GetLatestVersions(ctx context.Context, documentID uuid.UUID) ([]*domain.BlockVersion, error)
}

// Snapshot is the archived form of a document's block heads at a point in time
type Snapshot struct {
	DocumentID uuid.UUID              `json:"document_id"`
	TakenAt    time.Time              `json:"taken_at"`
	Epoch      int64                  `json:"epoch"`
	Blocks     []*domain.BlockVersion `json:"blocks"`
}

// Service archives document snapshots to MinIO
type Service struct {
	client   *minio.Client
	bucket   string
	versions VersionReader
}

// NewService creates a new archive service
func NewService(endpoint, accessKey, secretKey string, useSSL bool, bucket string, versions VersionReader) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Service{
		client:   client,
		bucket:   bucket,
		versions: versions,
	}, nil
}

// EnsureBucket creates the archive bucket if it does not exist
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func objectName(documentID uuid.UUID, takenAt time.Time) string {
	return fmt.Sprintf("%s/%s.json", documentID, takenAt.UTC().Format("2006-01-02T15-04-05Z"))
}

// TakeSnapshot archives the current head of every block in a document and
// returns the object name it was stored under
func (s *Service) TakeSnapshot(ctx context.Context, doc *domain.Document) (string, error) {
	blocks, err := s.versions.GetLatestVersions(ctx, doc.DocumentID)
	if err != nil {
		return "", apperrors.StorageError(err)
	}

	snapshot := &Snapshot{
		DocumentID: doc.DocumentID,
		TakenAt:    time.Now().UTC(),
		Epoch:      doc.CurrentEpoch,
		Blocks:     blocks,
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", apperrors.StorageError(err)
	}

	name := objectName(doc.DocumentID, snapshot.TakenAt)
	_, err = s.client.PutObject(ctx, s.bucket, name,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", apperrors.StorageError(err)
	}

	logger.Info("document snapshot archived",
		zap.String("document_id", doc.DocumentID.String()),
		zap.String("object", name),
		zap.Int("blocks", len(blocks)))

	return name, nil
}

// GetSnapshot loads an archived snapshot by object name
func (s *Service) GetSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	object, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	defer object.Close()

	snapshot := &Snapshot{}
	if err := json.NewDecoder(object).Decode(snapshot); err != nil {
		return nil, apperrors.StorageError(err)
	}

	return snapshot, nil
}

// ListSnapshots lists the archived snapshot object names for a document,
// newest last
func (s *Service) ListSnapshots(ctx context.Context, documentID uuid.UUID) ([]string, error) {
	var names []string
	prefix := documentID.String() + "/"

	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			return nil, apperrors.StorageError(object.Err)
		}
		names = append(names, object.Key)
	}

	return names, nil
}
