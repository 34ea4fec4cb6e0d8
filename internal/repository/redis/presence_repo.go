package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"securedocs-backend/pkg/constants"
)

// PresenceRepository tracks which users are active in a document. Presence
// keys carry a TTL so a crashed client disappears on its own; the per-document
// set is advisory and pruned on read.
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(documentID, userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s:%s", documentID, userID)
}

func presenceSetKey(documentID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", documentID)
}

// SetActive marks a user as active in a document
func (r *PresenceRepository) SetActive(ctx context.Context, documentID, userID uuid.UUID) error {
	if err := r.client.Set(ctx, presenceKey(documentID, userID), "active", constants.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	if err := r.client.SAdd(ctx, presenceSetKey(documentID), userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add to presence set: %w", err)
	}
	return nil
}

// Refresh extends a user's presence TTL (heartbeat)
func (r *PresenceRepository) Refresh(ctx context.Context, documentID, userID uuid.UUID) error {
	if err := r.client.Expire(ctx, presenceKey(documentID, userID), constants.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// SetInactive removes a user's presence
func (r *PresenceRepository) SetInactive(ctx context.Context, documentID, userID uuid.UUID) error {
	if err := r.client.Del(ctx, presenceKey(documentID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	if err := r.client.SRem(ctx, presenceSetKey(documentID), userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove from presence set: %w", err)
	}
	return nil
}

// GetActiveUsers returns the users currently active in a document, dropping
// set members whose presence key has expired
func (r *PresenceRepository) GetActiveUsers(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, presenceSetKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence set: %w", err)
	}

	active := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		userID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		exists, err := r.client.Exists(ctx, presenceKey(documentID, userID)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check presence: %w", err)
		}
		if exists > 0 {
			active = append(active, userID)
		} else {
			r.client.SRem(ctx, presenceSetKey(documentID), member)
		}
	}

	return active, nil
}
