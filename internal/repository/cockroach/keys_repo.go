package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"securedocs-backend/internal/domain"
)

// KeysRepository stores identity keys and document key records in CockroachDB
type KeysRepository struct {
	pool *pgxpool.Pool
}

// NewKeysRepository creates a new KeysRepository
func NewKeysRepository(pool *pgxpool.Pool) *KeysRepository {
	return &KeysRepository{pool: pool}
}

// SaveIdentityKey upserts a user's public identity keys
func (r *KeysRepository) SaveIdentityKey(ctx context.Context, key *domain.IdentityKey) error {
	query := `
		INSERT INTO identity_keys (user_id, signing_key, encryption_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET signing_key = excluded.signing_key, encryption_key = excluded.encryption_key
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		key.UserID,
		key.SigningKey,
		key.EncryptionKey,
	).Scan(&key.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save identity key: %w", err)
	}

	return nil
}

// GetIdentityKey retrieves a user's public identity keys
func (r *KeysRepository) GetIdentityKey(ctx context.Context, userID uuid.UUID) (*domain.IdentityKey, error) {
	query := `
		SELECT user_id, signing_key, encryption_key, created_at
		FROM identity_keys
		WHERE user_id = $1
	`

	key := &domain.IdentityKey{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&key.UserID,
		&key.SigningKey,
		&key.EncryptionKey,
		&key.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("identity key not found")
		}
		return nil, fmt.Errorf("failed to get identity key: %w", err)
	}

	return key, nil
}

// SaveRecords inserts a batch of key records in one transaction. A rotation's
// record set lands atomically or not at all.
func (r *KeysRepository) SaveRecords(ctx context.Context, records []*domain.DocumentKeyRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO document_key_records (document_id, user_id, epoch, encrypted_drk, signed_by, signature)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, record := range records {
		if _, err := tx.Exec(ctx, query,
			record.DocumentID,
			record.UserID,
			record.Epoch,
			record.EncryptedDRK,
			record.SignedBy,
			record.Signature,
		); err != nil {
			return fmt.Errorf("failed to save key record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit key records: %w", err)
	}

	return nil
}

// GetRecordsForUser returns every key record issued to a user for a document,
// oldest epoch first
func (r *KeysRepository) GetRecordsForUser(ctx context.Context, documentID, userID uuid.UUID) ([]*domain.DocumentKeyRecord, error) {
	query := `
		SELECT document_id, user_id, epoch, encrypted_drk, signed_by, signature, created_at
		FROM document_key_records
		WHERE document_id = $1 AND user_id = $2
		ORDER BY epoch ASC
	`

	rows, err := r.pool.Query(ctx, query, documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get key records: %w", err)
	}
	defer rows.Close()

	var records []*domain.DocumentKeyRecord
	for rows.Next() {
		record := &domain.DocumentKeyRecord{}
		if err := rows.Scan(
			&record.DocumentID,
			&record.UserID,
			&record.Epoch,
			&record.EncryptedDRK,
			&record.SignedBy,
			&record.Signature,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan key record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get key records: %w", err)
	}

	return records, nil
}

// GetRecord retrieves one key record by its unique (document, user, epoch) key
func (r *KeysRepository) GetRecord(ctx context.Context, documentID, userID uuid.UUID, epoch int64) (*domain.DocumentKeyRecord, error) {
	query := `
		SELECT document_id, user_id, epoch, encrypted_drk, signed_by, signature, created_at
		FROM document_key_records
		WHERE document_id = $1 AND user_id = $2 AND epoch = $3
	`

	record := &domain.DocumentKeyRecord{}
	err := r.pool.QueryRow(ctx, query, documentID, userID, epoch).Scan(
		&record.DocumentID,
		&record.UserID,
		&record.Epoch,
		&record.EncryptedDRK,
		&record.SignedBy,
		&record.Signature,
		&record.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("key record not found")
		}
		return nil, fmt.Errorf("failed to get key record: %w", err)
	}

	return record, nil
}
