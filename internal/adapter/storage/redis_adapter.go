package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userLockKeyPrefix = "lock:user:"
	userLockTTL       = 10 * time.Second
)

// Release only deletes the key if it still holds our token, so an expired
// lock reacquired by another process is never released by us.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

// RedisAdapter serializes per-user operations across processes with a
// SetNX lock. The TTL is a crash backstop; normal operation releases
// explicitly.
type RedisAdapter struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{
		client: client,
		tokens: make(map[string]string),
	}
}

func (r *RedisAdapter) AcquireUserLock(ctx context.Context, userID string) (bool, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, userLockKeyPrefix+userID, token, userLockTTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	r.tokens[userID] = token
	r.mu.Unlock()
	return true, nil
}

func (r *RedisAdapter) ReleaseUserLock(ctx context.Context, userID string) error {
	r.mu.Lock()
	token, ok := r.tokens[userID]
	delete(r.tokens, userID)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	return releaseLockScript.Run(ctx, r.client, []string{userLockKeyPrefix + userID}, token).Err()
}
