package explain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
)

const keyPrefix = "outfit:explain:"

// RedisAPI is the subset of the go-redis client the cache needs.
type RedisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cached memoizes another Generator in Redis. Cache failures are logged and
// the underlying generator is used directly.
type Cached struct {
	next Generator
	rdb  RedisAPI
	ttl  time.Duration
	log  *logger.Logger
}

func NewCached(next Generator, rdb RedisAPI, ttl time.Duration, log *logger.Logger) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl, log: logger.OrNop(log).With("component", "explain_cache")}
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Key is the cache key for a prompt/description pair.
func Key(prompt, description string) string {
	sum := sha256.Sum256([]byte(prompt + "|" + description))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cached) Explain(ctx context.Context, prompt, description string) (string, error) {
	key := Key(prompt, description)
	text, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil && text != "":
		return text, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", "key", key, "error", err)
	}

	text, err = c.next.Explain(ctx, prompt, description)
	if err != nil {
		return "", err
	}
	if text == "" {
		return text, nil
	}
	if err := c.rdb.Set(ctx, key, text, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
	return text, nil
}
