package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/port"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	lockKeyPrefix        = "lock:"
	tokenKeyPrefix       = "token:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// releaseLockScript deletes the lock only while it is still held by the
// caller, so an expired lock re-acquired by someone else survives.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

var (
	_ port.CacheRepository = (*RedisAdapter)(nil)
	_ port.TokenStore      = (*RedisAdapter)(nil)
)

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key = lockKeyPrefix + key
	owner := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		return releaseLockScript.Run(ctx, r.client, []string{key}, owner).Err()
	}
	return release, true, nil
}

func (r *RedisAdapter) ResolveToken(ctx context.Context, token string) (int64, error) {
	val, err := r.client.Get(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token %s maps to malformed user id %q", token, val)
	}
	return id, nil
}

// IssueToken stores a new non-expiring token for userID.
func (r *RedisAdapter) IssueToken(ctx context.Context, userID int64) (string, error) {
	token := newToken()
	if err := r.client.Set(ctx, tokenKeyPrefix+token, userID, 0).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (r *RedisAdapter) RevokeToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, tokenKeyPrefix+token).Err()
}

// newToken returns a 40 character hex key, the same shape as DRF tokens.
func newToken() string {
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return raw[:40]
}
