package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/convo"
)

const (
	ctxKeyPrefix = "snark:ctx:"
	ctxCacheMax  = 50
	ctxCacheTTL  = 720 * time.Hour
)

// ContextCache keeps a rolling window of recent turns per channel in
// Redis, so channel-window context does not need a platform round trip.
type ContextCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewContextCache connects to Redis at the given URL.
func NewContextCache(url string, logger *zap.Logger) (*ContextCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Redis context cache connected")
	return &ContextCache{client: client, logger: logger}, nil
}

// NewContextCacheFromClient wraps an existing client, as integration
// tests do with a container-backed one.
func NewContextCacheFromClient(client *redis.Client, logger *zap.Logger) *ContextCache {
	return &ContextCache{client: client, logger: logger}
}

// Append records a turn at the head of a channel's window and trims the
// window to its cap. Failures are logged, not returned: the cache is an
// optimization, never a dependency.
func (c *ContextCache) Append(ctx context.Context, channelID string, turn convo.Turn) {
	data, err := json.Marshal(turn)
	if err != nil {
		c.logger.Warn("Context cache marshal failed", zap.Error(err))
		return
	}
	key := ctxKeyPrefix + channelID
	pipe := c.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, ctxCacheMax-1)
	pipe.Expire(ctx, key, ctxCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Context cache append failed",
			zap.String("channel", channelID),
			zap.Error(err))
	}
}

// Recent returns up to maxTurns cached turns for a channel in
// chronological order. An empty result means the caller should fall
// back to platform history.
func (c *ContextCache) Recent(ctx context.Context, channelID string, maxTurns int) ([]convo.Turn, error) {
	if maxTurns <= 0 || maxTurns > ctxCacheMax {
		maxTurns = ctxCacheMax
	}
	raw, err := c.client.LRange(ctx, ctxKeyPrefix+channelID, 0, int64(maxTurns)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("context cache read %s: %w", channelID, err)
	}

	// Stored newest-first; reverse to chronological.
	turns := make([]convo.Turn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var t convo.Turn
		if err := json.Unmarshal([]byte(raw[i]), &t); err != nil {
			c.logger.Warn("Context cache entry corrupt, skipping", zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Close releases the Redis connection.
func (c *ContextCache) Close() error {
	return c.client.Close()
}
