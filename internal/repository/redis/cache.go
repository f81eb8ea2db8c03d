package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/thinhdnn/ai-test-management/internal/config"
)

// Cache provides Redis caching functionality
type Cache struct {
	client    *redis.Client
	scriptTTL time.Duration
}

// Key prefixes for different cache types
const (
	PrefixScript    = "script:"
	PrefixRateLimit = "ratelimit:"
	PrefixEvents    = "events:testcase:"
)

// Default TTLs
const (
	DefaultScriptTTL = 24 * time.Hour
	RateLimitWindow  = 1 * time.Minute
)

// New creates a new Redis cache client
func New(cfg config.RedisConfig, scriptTTL time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewWithClient(client, scriptTTL), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, scriptTTL time.Duration) *Cache {
	if scriptTTL <= 0 {
		scriptTTL = DefaultScriptTTL
	}
	return &Cache{client: client, scriptTTL: scriptTTL}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Script caching. Scripts are keyed by the fingerprint of everything that
// went into assembling them.

// GetScript returns a cached script; ok is false on a miss
func (c *Cache) GetScript(ctx context.Context, fingerprint string) (string, bool, error) {
	script, err := c.client.Get(ctx, PrefixScript+fingerprint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return script, true, nil
}

// SetScript caches an assembled script
func (c *Cache) SetScript(ctx context.Context, fingerprint, script string) error {
	return c.client.Set(ctx, PrefixScript+fingerprint, script, c.scriptTTL).Err()
}

// Rate limiting

// CheckRateLimit checks and increments rate limit counter
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	fullKey := PrefixRateLimit + key

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, RateLimitWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	return count <= limit, count, nil
}

// GetRateLimitRemaining returns remaining rate limit
func (c *Cache) GetRateLimitRemaining(ctx context.Context, key string, limit int) (int, error) {
	count, err := c.client.Get(ctx, PrefixRateLimit+key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return limit, nil
		}
		return 0, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Script update notifications

// ScriptEvent is published whenever a test case script is rewritten
type ScriptEvent struct {
	TestCaseID uuid.UUID `json:"test_case_id"`
	Version    string    `json:"version"`
	Path       string    `json:"path"`
	Mode       string    `json:"mode"`
	At         time.Time `json:"at"`
}

// EventChannel is the pub/sub channel for one test case
func EventChannel(testCaseID uuid.UUID) string {
	return PrefixEvents + testCaseID.String()
}

// PublishScriptEvent notifies subscribers of a rewritten script
func (c *Cache) PublishScriptEvent(ctx context.Context, ev ScriptEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, EventChannel(ev.TestCaseID), data).Err()
}

// Subscribe subscribes to script events of a test case
func (c *Cache) Subscribe(ctx context.Context, testCaseID uuid.UUID) *redis.PubSub {
	return c.client.Subscribe(ctx, EventChannel(testCaseID))
}

// SubscribeScriptEvents subscribes to script events of a test case and
// returns the raw JSON payloads. The subscription is confirmed before
// returning; call close to release it.
func (c *Cache) SubscribeScriptEvents(ctx context.Context, testCaseID uuid.UUID) (<-chan string, func() error, error) {
	ps := c.Subscribe(ctx, testCaseID)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, ps.Close, nil
}
