package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisDeduplicator backs the dedup window with Redis so that marks survive
// restarts and are shared when several instances consume the same
// subscription. SET NX gives the atomic insert-if-absent; key TTLs replace
// the sweep.
type RedisDeduplicator struct {
	client    *redis.Client
	keyPrefix string
	window    time.Duration
	logger    *zap.Logger
}

// NewRedisDeduplicator creates a Redis-backed deduplicator. window <= 0 falls
// back to DefaultWindow.
func NewRedisDeduplicator(client *redis.Client, keyPrefix string, window time.Duration, logger *zap.Logger) *RedisDeduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisDeduplicator{
		client:    client,
		keyPrefix: keyPrefix,
		window:    window,
		logger:    logger,
	}
}

func (d *RedisDeduplicator) key(id string) string {
	return d.keyPrefix + id
}

// CheckAndMark reserves id via SET NX with the window as TTL.
func (d *RedisDeduplicator) CheckAndMark(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(id), time.Now().Unix(), d.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check-and-mark %s: %w", id, err)
	}
	return ok, nil
}

// Seen reports whether the mark key still exists.
func (d *RedisDeduplicator) Seen(ctx context.Context, id string) (bool, error) {
	count, err := d.client.Exists(ctx, d.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check mark %s: %w", id, err)
	}
	return count > 0, nil
}

// Mark refreshes the mark and its TTL.
func (d *RedisDeduplicator) Mark(ctx context.Context, id string) error {
	if err := d.client.Set(ctx, d.key(id), time.Now().Unix(), d.window).Err(); err != nil {
		return fmt.Errorf("failed to mark %s: %w", id, err)
	}
	return nil
}

// Release deletes the mark so a redelivery can be processed.
func (d *RedisDeduplicator) Release(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to release mark %s: %w", id, err)
	}
	return nil
}

// Sweep is a no-op: Redis key TTLs expire marks on their own.
func (d *RedisDeduplicator) Sweep(_ context.Context) error {
	return nil
}
