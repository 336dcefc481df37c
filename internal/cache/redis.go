// Package cache publishes advisory balance snapshots to Redis for read-side
// collaborators. The cache is never authoritative: the engine writes through
// inside its per-account critical section and drops the key whenever a write
// cannot be confirmed, so readers either see the latest confirmed balance or
// a miss.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const balanceKeyPrefix = "balance:"

// BalanceCache is the engine-facing contract.
type BalanceCache interface {
	// Set records the confirmed balance for an account.
	Set(ctx context.Context, accountID string, balance int64) error
	// Invalidate drops the cached balance for an account.
	Invalidate(ctx context.Context, accountID string) error
}

// RedisCache implements BalanceCache on a Redis client.
type RedisCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisCache(client *goredis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func balanceKey(accountID string) string {
	return balanceKeyPrefix + accountID
}

func (c *RedisCache) Set(ctx context.Context, accountID string, balance int64) error {
	if err := c.client.Set(ctx, balanceKey(accountID), balance, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, accountID string) error {
	if err := c.client.Del(ctx, balanceKey(accountID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate failed: %w", err)
	}
	return nil
}

// Get reads the advisory balance. Read-side services consume this directly;
// the engine never serves balances from it.
func (c *RedisCache) Get(ctx context.Context, accountID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(accountID)).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache get failed: %w", err)
	}
	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cache value corrupt: %w", err)
	}
	return balance, true, nil
}
