package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"securedocs-backend/internal/domain"
)

// BlockRepository stores block version history in Cassandra.
// The history is append-only: versions are inserted, never updated, and only
// whole blocks are ever deleted. Partitioned by (document_id, block_id) with
// version as clustering key so a block's chain reads as one partition scan.
type BlockRepository struct {
	session *gocql.Session
}

// NewBlockRepository creates a new BlockRepository
func NewBlockRepository(session *gocql.Session) *BlockRepository {
	return &BlockRepository{session: session}
}

// SaveVersion appends a version to the history and upserts the block's head
// row. Cassandra has no cross-table transactions; the head row is best effort
// and GetLatestVersion always reads the history table.
func (r *BlockRepository) SaveVersion(ctx context.Context, v *domain.BlockVersion) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO block_versions (
			document_id, block_id, version, author_id, idx, epoch,
			cipher_text, iv, prev_hash, hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		v.DocumentID,
		v.BlockID,
		v.Version,
		v.AuthorID,
		v.Index,
		v.Epoch,
		v.CipherText,
		v.IV,
		v.PrevHash,
		v.Hash,
		v.CreatedAt,
	).WithContext(ctx).Exec()

	if err != nil {
		return fmt.Errorf("failed to save block version: %w", err)
	}

	return r.saveHead(ctx, v)
}

// GetLatestVersion returns the newest version of a block, or nil when the
// block has no history
func (r *BlockRepository) GetLatestVersion(ctx context.Context, documentID uuid.UUID, blockID string) (*domain.BlockVersion, error) {
	query := `
		SELECT document_id, block_id, version, author_id, idx, epoch,
		       cipher_text, iv, prev_hash, hash, created_at
		FROM block_versions
		WHERE document_id = ? AND block_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	v := &domain.BlockVersion{}
	err := r.session.Query(query, documentID, blockID).WithContext(ctx).Scan(
		&v.DocumentID,
		&v.BlockID,
		&v.Version,
		&v.AuthorID,
		&v.Index,
		&v.Epoch,
		&v.CipherText,
		&v.IV,
		&v.PrevHash,
		&v.Hash,
		&v.CreatedAt,
	)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest block version: %w", err)
	}

	return v, nil
}

// GetLatestVersions returns the newest version of every block in a document.
// Reads from the block_heads table, which SaveVersion keeps in step with the
// history inserts.
func (r *BlockRepository) GetLatestVersions(ctx context.Context, documentID uuid.UUID) ([]*domain.BlockVersion, error) {
	query := `
		SELECT document_id, block_id, version, author_id, idx, epoch,
		       cipher_text, iv, prev_hash, hash, created_at
		FROM block_heads
		WHERE document_id = ?
	`

	iter := r.session.Query(query, documentID).WithContext(ctx).Iter()

	var versions []*domain.BlockVersion
	for {
		v := &domain.BlockVersion{}
		if !iter.Scan(
			&v.DocumentID,
			&v.BlockID,
			&v.Version,
			&v.AuthorID,
			&v.Index,
			&v.Epoch,
			&v.CipherText,
			&v.IV,
			&v.PrevHash,
			&v.Hash,
			&v.CreatedAt,
		) {
			break
		}
		versions = append(versions, v)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch block heads: %w", err)
	}

	return versions, nil
}

func (r *BlockRepository) saveHead(ctx context.Context, v *domain.BlockVersion) error {
	query := `
		INSERT INTO block_heads (
			document_id, block_id, version, author_id, idx, epoch,
			cipher_text, iv, prev_hash, hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		v.DocumentID,
		v.BlockID,
		v.Version,
		v.AuthorID,
		v.Index,
		v.Epoch,
		v.CipherText,
		v.IV,
		v.PrevHash,
		v.Hash,
		v.CreatedAt,
	).WithContext(ctx).Exec()

	if err != nil {
		return fmt.Errorf("failed to save block head: %w", err)
	}

	return nil
}

// GetHistory returns a block's versions above sinceVersion, oldest first
func (r *BlockRepository) GetHistory(ctx context.Context, documentID uuid.UUID, blockID string, sinceVersion int64, limit int) ([]*domain.BlockVersion, error) {
	query := `
		SELECT document_id, block_id, version, author_id, idx, epoch,
		       cipher_text, iv, prev_hash, hash, created_at
		FROM block_versions
		WHERE document_id = ? AND block_id = ? AND version > ?
		ORDER BY version ASC
		LIMIT ?
	`

	iter := r.session.Query(query, documentID, blockID, sinceVersion, limit).WithContext(ctx).Iter()

	var versions []*domain.BlockVersion
	for {
		v := &domain.BlockVersion{}
		if !iter.Scan(
			&v.DocumentID,
			&v.BlockID,
			&v.Version,
			&v.AuthorID,
			&v.Index,
			&v.Epoch,
			&v.CipherText,
			&v.IV,
			&v.PrevHash,
			&v.Hash,
			&v.CreatedAt,
		) {
			break
		}
		versions = append(versions, v)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch block history: %w", err)
	}

	return versions, nil
}

// DeleteBlock removes a block's entire history and its head row
func (r *BlockRepository) DeleteBlock(ctx context.Context, documentID uuid.UUID, blockID string) error {
	err := r.session.Query(
		`DELETE FROM block_versions WHERE document_id = ? AND block_id = ?`,
		documentID, blockID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete block history: %w", err)
	}

	err = r.session.Query(
		`DELETE FROM block_heads WHERE document_id = ? AND block_id = ?`,
		documentID, blockID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete block head: %w", err)
	}

	return nil
}
