package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"securedocs-backend/internal/domain"
	"securedocs-backend/pkg/pagination"
)

// DocumentRepository handles document and membership storage in CockroachDB
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// CreateDocument inserts a new document at epoch 0
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (document_id, owner_id, title, current_epoch)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		doc.DocumentID,
		doc.OwnerID,
		doc.Title,
		doc.CurrentEpoch,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// GetDocument retrieves a document by ID
func (r *DocumentRepository) GetDocument(ctx context.Context, documentID uuid.UUID) (*domain.Document, error) {
	query := `
		SELECT document_id, owner_id, title, current_epoch, created_at, updated_at
		FROM documents
		WHERE document_id = $1
	`

	doc := &domain.Document{}
	err := r.pool.QueryRow(ctx, query, documentID).Scan(
		&doc.DocumentID,
		&doc.OwnerID,
		&doc.Title,
		&doc.CurrentEpoch,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("document not found")
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// ListDocumentsForUser returns the documents a user is a member of, newest
// first, with the total count for pagination
func (r *DocumentRepository) ListDocumentsForUser(ctx context.Context, userID uuid.UUID, params *pagination.Params) ([]*domain.Document, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM document_members WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	query := `
		SELECT d.document_id, d.owner_id, d.title, d.current_epoch, d.created_at, d.updated_at
		FROM documents d
		JOIN document_members m ON m.document_id = d.document_id
		WHERE m.user_id = $1
		ORDER BY d.updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc := &domain.Document{}
		if err := rows.Scan(
			&doc.DocumentID,
			&doc.OwnerID,
			&doc.Title,
			&doc.CurrentEpoch,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}

	return docs, total, nil
}

// AdvanceEpoch moves the document's epoch forward by one. The WHERE clause on
// the old value makes concurrent rotations a compare-and-swap: the loser
// matches zero rows.
func (r *DocumentRepository) AdvanceEpoch(ctx context.Context, documentID uuid.UUID, fromEpoch int64) error {
	query := `
		UPDATE documents
		SET current_epoch = current_epoch + 1, updated_at = now()
		WHERE document_id = $1 AND current_epoch = $2
	`

	tag, err := r.pool.Exec(ctx, query, documentID, fromEpoch)
	if err != nil {
		return fmt.Errorf("failed to advance epoch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("epoch advanced concurrently from %d", fromEpoch)
	}

	return nil
}

// DeleteDocument removes a document; members and key records cascade
func (r *DocumentRepository) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// AddMember inserts a membership row
func (r *DocumentRepository) AddMember(ctx context.Context, member *domain.DocumentMember) error {
	query := `
		INSERT INTO document_members (document_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING added_at
	`

	err := r.pool.QueryRow(ctx, query,
		member.DocumentID,
		member.UserID,
		member.Role,
	).Scan(&member.AddedAt)

	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

// GetMember retrieves one membership row, or nil when the user is not a member
func (r *DocumentRepository) GetMember(ctx context.Context, documentID, userID uuid.UUID) (*domain.DocumentMember, error) {
	query := `
		SELECT document_id, user_id, role, added_at
		FROM document_members
		WHERE document_id = $1 AND user_id = $2
	`

	member := &domain.DocumentMember{}
	err := r.pool.QueryRow(ctx, query, documentID, userID).Scan(
		&member.DocumentID,
		&member.UserID,
		&member.Role,
		&member.AddedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// GetMembers lists a document's members
func (r *DocumentRepository) GetMembers(ctx context.Context, documentID uuid.UUID) ([]*domain.DocumentMember, error) {
	query := `
		SELECT document_id, user_id, role, added_at
		FROM document_members
		WHERE document_id = $1
		ORDER BY added_at ASC
	`

	rows, err := r.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*domain.DocumentMember
	for rows.Next() {
		member := &domain.DocumentMember{}
		if err := rows.Scan(
			&member.DocumentID,
			&member.UserID,
			&member.Role,
			&member.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

// RemoveMember deletes a membership row
func (r *DocumentRepository) RemoveMember(ctx context.Context, documentID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM document_members WHERE document_id = $1 AND user_id = $2`,
		documentID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}
