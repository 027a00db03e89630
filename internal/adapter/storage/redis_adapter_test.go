package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func getRedisAdapter(t *testing.T) *RedisAdapter {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewRedisAdapter(client)
}

func TestRedisUserLock(t *testing.T) {
	adapter := getRedisAdapter(t)
	ctx := context.Background()

	userID := "test-user-" + uuid.NewString()[:8]
	t.Cleanup(func() { adapter.client.Del(ctx, userLockKeyPrefix+userID) })

	ok, err := adapter.AcquireUserLock(ctx, userID)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	ok, err = adapter.AcquireUserLock(ctx, userID)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok {
		t.Error("expected second acquire to fail while held")
	}

	if err := adapter.ReleaseUserLock(ctx, userID); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	ok, err = adapter.AcquireUserLock(ctx, userID)
	if err != nil {
		t.Fatalf("reacquire errored: %v", err)
	}
	if !ok {
		t.Error("expected acquire to succeed after release")
	}
}

func TestRedisReleaseWithoutAcquire(t *testing.T) {
	adapter := getRedisAdapter(t)

	// Releasing a lock this process never took is a no-op.
	if err := adapter.ReleaseUserLock(context.Background(), "never-acquired-"+uuid.NewString()[:8]); err != nil {
		t.Errorf("expected no-op release, got: %v", err)
	}
}

func TestRedisRelease_DoesNotDeleteForeignLock(t *testing.T) {
	adapter := getRedisAdapter(t)
	ctx := context.Background()

	userID := "test-foreign-" + uuid.NewString()[:8]
	key := userLockKeyPrefix + userID
	t.Cleanup(func() { adapter.client.Del(ctx, key) })

	if ok, err := adapter.AcquireUserLock(ctx, userID); err != nil || !ok {
		t.Fatalf("acquire failed: %v, %v", ok, err)
	}

	// Simulate expiry plus reacquisition by another process.
	if err := adapter.client.Set(ctx, key, "foreign-token", 0).Err(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := adapter.ReleaseUserLock(ctx, userID); err != nil {
		t.Fatalf("release errored: %v", err)
	}

	val, err := adapter.client.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != "foreign-token" {
		t.Error("release deleted a lock held by another process")
	}
}
