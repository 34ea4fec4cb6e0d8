package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"securedocs-backend/internal/service/editing"
)

// releaseScript deletes the lock only when held by the expected owner, so a
// release racing with expiry and re-acquisition cannot drop someone else's lock
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// LockRepository implements editing.LockCoordinator over Redis. Lock state is
// a single key with a TTL; expiry is Redis's, never computed client-side.
type LockRepository struct {
	client *redis.Client
}

// NewLockRepository creates a new LockRepository
func NewLockRepository(client *redis.Client) *LockRepository {
	return &LockRepository{client: client}
}

func lockKey(blockID string) string {
	return fmt.Sprintf("lock:block:%s", blockID)
}

// TryAcquire implements editing.LockCoordinator via SET NX
func (r *LockRepository) TryAcquire(ctx context.Context, blockID string, ownerID uuid.UUID, ttl time.Duration) (*editing.LockStatus, bool, error) {
	key := lockKey(blockID)

	ok, err := r.client.SetNX(ctx, key, ownerID.String(), ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if ok {
		return &editing.LockStatus{
			BlockID:   blockID,
			OwnerID:   ownerID,
			ExpiresAt: time.Now().Add(ttl),
		}, true, nil
	}

	holder, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Lock expired between SETNX and GET; let the caller retry
		return nil, false, fmt.Errorf("lock state changed during acquisition")
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read lock: %w", err)
	}

	holderID, err := uuid.Parse(holder)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt lock value %q: %w", holder, err)
	}

	// Refreshing one's own lock extends the TTL
	if holderID == ownerID {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return nil, false, fmt.Errorf("failed to refresh lock: %w", err)
		}
		return &editing.LockStatus{
			BlockID:   blockID,
			OwnerID:   ownerID,
			ExpiresAt: time.Now().Add(ttl),
		}, true, nil
	}

	remaining, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read lock ttl: %w", err)
	}

	return &editing.LockStatus{
		BlockID:   blockID,
		OwnerID:   holderID,
		ExpiresAt: time.Now().Add(remaining),
	}, false, nil
}

// Get implements editing.LockCoordinator
func (r *LockRepository) Get(ctx context.Context, blockID string) (*editing.LockStatus, error) {
	key := lockKey(blockID)

	holder, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}

	holderID, err := uuid.Parse(holder)
	if err != nil {
		return nil, fmt.Errorf("corrupt lock value %q: %w", holder, err)
	}

	remaining, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lock ttl: %w", err)
	}

	return &editing.LockStatus{
		BlockID:   blockID,
		OwnerID:   holderID,
		ExpiresAt: time.Now().Add(remaining),
	}, nil
}

// Release implements editing.LockCoordinator
func (r *LockRepository) Release(ctx context.Context, blockID string, expectedOwner uuid.UUID, force bool) error {
	key := lockKey(blockID)

	if force {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}

	if err := releaseScript.Run(ctx, r.client, []string{key}, expectedOwner.String()).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
