package editing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCoordinator is an in-process LockCoordinator for single-node
// deployments and tests. The clock is injectable so expiry can be simulated.
type MemoryCoordinator struct {
	mu    sync.Mutex
	locks map[string]memLock
	now   func() time.Time
}

type memLock struct {
	ownerID   uuid.UUID
	expiresAt time.Time
}

// NewMemoryCoordinator creates a coordinator using the wall clock
func NewMemoryCoordinator() *MemoryCoordinator {
	return NewMemoryCoordinatorWithClock(time.Now)
}

// NewMemoryCoordinatorWithClock creates a coordinator with a custom clock
func NewMemoryCoordinatorWithClock(now func() time.Time) *MemoryCoordinator {
	return &MemoryCoordinator{
		locks: make(map[string]memLock),
		now:   now,
	}
}

// TryAcquire implements LockCoordinator
func (c *MemoryCoordinator) TryAcquire(ctx context.Context, blockID string, ownerID uuid.UUID, ttl time.Duration) (*LockStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	existing, held := c.locks[blockID]
	if held && existing.expiresAt.After(now) && existing.ownerID != ownerID {
		return &LockStatus{BlockID: blockID, OwnerID: existing.ownerID, ExpiresAt: existing.expiresAt}, false, nil
	}

	lock := memLock{ownerID: ownerID, expiresAt: now.Add(ttl)}
	c.locks[blockID] = lock
	return &LockStatus{BlockID: blockID, OwnerID: ownerID, ExpiresAt: lock.expiresAt}, true, nil
}

// Get implements LockCoordinator
func (c *MemoryCoordinator) Get(ctx context.Context, blockID string) (*LockStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, held := c.locks[blockID]
	if !held || !existing.expiresAt.After(c.now()) {
		return nil, nil
	}
	return &LockStatus{BlockID: blockID, OwnerID: existing.ownerID, ExpiresAt: existing.expiresAt}, nil
}

// Release implements LockCoordinator
func (c *MemoryCoordinator) Release(ctx context.Context, blockID string, expectedOwner uuid.UUID, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, held := c.locks[blockID]
	if !held {
		return nil
	}
	if force || existing.ownerID == expectedOwner {
		delete(c.locks, blockID)
	}
	return nil
}
