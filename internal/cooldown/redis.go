package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "snark:cd:"

// RedisLedger implements Ledger on Redis. Atomicity comes from SET NX with
// a TTL equal to the cooldown window; expiry is native key expiry.
type RedisLedger struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisLedger connects to Redis and returns a ledger.
func NewRedisLedger(redisURL string, logger *zap.Logger) (*RedisLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLedger{rdb: rdb, logger: logger}, nil
}

// NewRedisLedgerFromClient wraps an existing client.
func NewRedisLedgerFromClient(rdb *redis.Client, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{rdb: rdb, logger: logger}
}

func key(userID, capability string) string {
	return keyPrefix + userID + ":" + capability
}

// CheckAndReserve admits iff no live reservation exists, writing the new
// reservation in the same atomic operation.
func (l *RedisLedger) CheckAndReserve(ctx context.Context, userID, capability string, window time.Duration) (Decision, error) {
	if window <= 0 {
		return Decision{Admitted: true}, nil
	}

	k := key(userID, capability)
	set, err := l.rdb.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("cooldown reserve %s: %w", k, err)
	}
	if set {
		return Decision{Admitted: true}, nil
	}

	remaining, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil || remaining < 0 {
		// Reservation expired between SETNX and PTTL; report a minimal wait
		// rather than admitting a second caller inside the same window.
		remaining = time.Second
	}
	return Decision{Admitted: false, Remaining: remaining}, nil
}

// Release drops the reservation.
func (l *RedisLedger) Release(ctx context.Context, userID, capability string) error {
	if err := l.rdb.Del(ctx, key(userID, capability)).Err(); err != nil {
		return fmt.Errorf("cooldown release: %w", err)
	}
	return nil
}

// Close shuts down the Redis client.
func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}
