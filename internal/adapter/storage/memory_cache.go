package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/little-lemon/internal/port"
)

// MemoryCache implements the cache port in process memory for
// single-instance deployments without Redis.
type MemoryCache struct {
	mu          sync.Mutex
	idempotency map[string]time.Time
	locks       map[string]memoryLock
	now         func() time.Time
}

type memoryLock struct {
	owner   string
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		idempotency: make(map[string]time.Time),
		locks:       make(map[string]memoryLock),
		now:         time.Now,
	}
}

var _ port.CacheRepository = (*MemoryCache)(nil)

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.idempotency[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.idempotency[key] = now.Add(idempotencyKeyTTL)
	return true, nil
}

func (c *MemoryCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if l, ok := c.locks[key]; ok && now.Before(l.expires) {
		return nil, false, nil
	}

	owner := uuid.NewString()
	c.locks[key] = memoryLock{owner: owner, expires: now.Add(ttl)}

	release := func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if l, ok := c.locks[key]; ok && l.owner == owner {
			delete(c.locks, key)
		}
		return nil
	}
	return release, true, nil
}
