package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const runLockPrefix = "nodelink:run:"

// releaseScript deletes a lock only if it is still held by the given token
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisService provides the distributed run lock shared by server instances
type RedisService struct {
	client *redis.Client
}

// NewRedisService connects to Redis and verifies the connection
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// NewRedisServiceWithClient wraps an existing client
func NewRedisServiceWithClient(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is healthy
func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// AcquireLock attempts to acquire a distributed lock.
// Returns true if the lock was acquired.
func (r *RedisService) AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, lockKey, lockValue, expiration).Result()
}

// ReleaseLock releases a distributed lock if it's still held by the given value
func (r *RedisService) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	result, err := releaseScript.Run(ctx, r.client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// RunLock is a held per-project run lock
type RunLock struct {
	key   string
	token string
}

// ErrRunLocked is returned when another instance holds the run lock
var ErrRunLocked = errors.New("project run is locked by another instance")

// AcquireRunLock takes nodelink:run:<projectID> for ttl
func (r *RedisService) AcquireRunLock(ctx context.Context, projectID string, ttl time.Duration) (*RunLock, error) {
	lock := &RunLock{key: runLockPrefix + projectID, token: uuid.New().String()}
	ok, err := r.AcquireLock(ctx, lock.key, lock.token, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunLocked
	}
	log.Printf("🔒 [RUN-LOCK] Acquired %s", lock.key)
	return lock, nil
}

// ReleaseRunLock drops a lock taken by AcquireRunLock
func (r *RedisService) ReleaseRunLock(ctx context.Context, lock *RunLock) {
	if lock == nil {
		return
	}
	released, err := r.ReleaseLock(ctx, lock.key, lock.token)
	switch {
	case err != nil:
		log.Printf("⚠️ [RUN-LOCK] Failed to release %s: %v", lock.key, err)
	case !released:
		log.Printf("⚠️ [RUN-LOCK] %s expired before release", lock.key)
	default:
		log.Printf("🔓 [RUN-LOCK] Released %s", lock.key)
	}
}
