package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// AcquireLock takes a short-lived exclusive lock. ok is false when another
	// holder owns it; release must be called once the critical section ends.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type TokenStore interface {
	// ResolveToken maps an API token to its user, or domain.ErrUnauthenticated
	ResolveToken(ctx context.Context, token string) (int64, error)

	IssueToken(ctx context.Context, userID int64) (string, error)
}
