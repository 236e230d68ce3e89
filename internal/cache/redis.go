package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/filedepot/filedepot/pkg/config"
	"github.com/filedepot/filedepot/pkg/logging"
)

const namespace = "filedepot"

// Cache wraps Redis client. A nil *Cache is a valid, disabled cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	// gen counts Invalidate calls; mu orders them against SetJSONAt.
	mu  sync.Mutex
	gen uint64
}

// New creates a new Redis cache client. It returns nil when Redis is disabled.
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logging.WithComponent("cache"),
	}
}

// HashKey builds a fixed-length key from arbitrary parts
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) namespaceKey(key string) string {
	return namespace + ":" + key
}

// GetJSON loads key and unmarshals it into v
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	data, err := c.client.Get(ctx, c.namespaceKey(key)).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SetJSON marshals v and stores it under key with the configured TTL
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.namespaceKey(key), data, c.ttl).Err()
}

// Generation returns a token that changes on every Invalidate
func (c *Cache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetJSONAt stores v like SetJSON unless Invalidate ran after gen was taken
// from Generation. A value read before an invalidation is never stored after
// it. It reports whether v was stored.
func (c *Cache) SetJSONAt(ctx context.Context, key string, v interface{}, gen uint64) (bool, error) {
	if c == nil || c.client == nil {
		return false, ErrCacheDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false, nil
	}
	if err := c.SetJSON(ctx, key, v); err != nil {
		return false, err
	}
	return true, nil
}

// DeletePrefix removes every key starting with prefix
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	iter := c.client.Scan(ctx, 0, c.namespaceKey(prefix)+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Invalidate drops the given prefixes, logging failures instead of returning
// them; stale entries expire with the TTL anyway.
func (c *Cache) Invalidate(ctx context.Context, prefixes ...string) {
	if c == nil || c.client == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, p := range prefixes {
		if err := c.DeletePrefix(ctx, p); err != nil {
			c.logger.Warn("cache invalidation failed", zap.String("prefix", p), zap.Error(err))
		}
	}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = fmt.Errorf("cache is disabled")
)
