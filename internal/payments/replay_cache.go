package payments

import (
	"context"
	"fmt"
	"ms-admission/internal/logger"
	"time"

	"github.com/go-redis/redis/v8"
)

const replayKeyPrefix = "admission:webhook:processed"

// ReplayCache remembers provider notification IDs we already processed, so
// redeliveries can be answered without touching the database. It is a
// fast path only: the state machine's same-status no-op is what actually
// guarantees idempotency, so cache misses and Redis outages are harmless.
type ReplayCache interface {
	Seen(ctx context.Context, notificationID string) bool
	MarkSeen(ctx context.Context, notificationID string)
}

type RedisReplayCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisReplayCache connects to Redis and verifies the connection before
// handing the cache out.
func NewRedisReplayCache(addr string, ttl time.Duration, log *logger.Logger) (*RedisReplayCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Error("REDIS", fmt.Sprintf("failed to connect to Redis at %s: %v", addr, err))
		return nil, err
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	log.Info("REDIS", fmt.Sprintf("connected to Redis at %s for webhook replay cache", addr))
	return &RedisReplayCache{client: client, ttl: ttl, log: log}, nil
}

func (c *RedisReplayCache) key(notificationID string) string {
	return fmt.Sprintf("%s:%s", replayKeyPrefix, notificationID)
}

func (c *RedisReplayCache) Seen(ctx context.Context, notificationID string) bool {
	n, err := c.client.Exists(ctx, c.key(notificationID)).Result()
	if err != nil {
		// Degrade to the database path.
		c.log.Warn("REDIS", fmt.Sprintf("replay lookup failed for %s: %v", notificationID, err))
		return false
	}
	return n > 0
}

func (c *RedisReplayCache) MarkSeen(ctx context.Context, notificationID string) {
	if err := c.client.Set(ctx, c.key(notificationID), time.Now().Format(time.RFC3339), c.ttl).Err(); err != nil {
		c.log.Warn("REDIS", fmt.Sprintf("failed to record notification %s: %v", notificationID, err))
	}
}

func (c *RedisReplayCache) Close() error {
	return c.client.Close()
}
