package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Counter tracks the number of live connections per user. The offline
// invariant (status offline iff zero connections) is only as wide as the
// counter: the memory counter covers one process, the Redis counter sums
// across all processes sharing the instance.
type Counter interface {
	Up(ctx context.Context, userID string) (int64, error)
	Down(ctx context.Context, userID string) (int64, error)
	Count(ctx context.Context, userID string) (int64, error)
}

// MemoryCounter is a process-local Counter for tests and single-process
// deployments.
type MemoryCounter struct {
	mu    sync.Mutex
	conns map[string]int64
}

// NewMemoryCounter creates a new in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{conns: make(map[string]int64)}
}

// Up increments the user's connection count.
func (c *MemoryCounter) Up(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[userID]++
	return c.conns[userID], nil
}

// Down decrements the user's connection count, flooring at zero.
func (c *MemoryCounter) Down(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[userID] > 0 {
		c.conns[userID]--
	}
	n := c.conns[userID]
	if n == 0 {
		delete(c.conns, userID)
	}
	return n, nil
}

// Count returns the user's current connection count.
func (c *MemoryCounter) Count(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[userID], nil
}

const redisKeyPrefix = "presence:conns:"

// RedisCounter sums live connections across all processes sharing one
// Redis instance.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a counter on an existing Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Up atomically increments the user's connection count.
func (c *RedisCounter) Up(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Incr(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		return 0, fmt.Errorf("counter incr error: %w", err)
	}
	return n, nil
}

// Down atomically decrements the user's connection count. A count driven
// negative by a crashed peer is reset to zero.
func (c *RedisCounter) Down(ctx context.Context, userID string) (int64, error) {
	key := redisKeyPrefix + userID
	n, err := c.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("counter decr error: %w", err)
	}
	if n < 0 {
		if err := c.client.Set(ctx, key, 0, 0).Err(); err != nil {
			return 0, fmt.Errorf("counter reset error: %w", err)
		}
		n = 0
	}
	return n, nil
}

// Count returns the user's current connection count.
func (c *RedisCounter) Count(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Get(ctx, redisKeyPrefix+userID).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("counter get error: %w", err)
	}
	return n, nil
}
