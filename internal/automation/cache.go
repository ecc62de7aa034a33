// internal/automation/cache.go
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fusion-sh/fusion/internal/store"
)

const (
	defaultConfigCacheTTL = 5 * time.Minute
	configCachePrefix     = "fusion:automation:config:"
)

// ConfigCache holds the decoded, validated Config for an automation so the
// engine doesn't re-decode and re-validate JSON on every dispatched event.
// It is invalidated on an automation PATCH (§6 outbound API contract).
type ConfigCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewConfigCache(client *redis.Client) *ConfigCache {
	return &ConfigCache{redis: client, ttl: defaultConfigCacheTTL}
}

func (c *ConfigCache) key(automationID string) string {
	return configCachePrefix + automationID
}

// Get returns the cached decoded config, or decodes and caches row.Config
// on a miss. A Redis outage degrades to decode-every-time rather than
// failing the dispatch.
func (c *ConfigCache) Get(ctx context.Context, row store.Automation) (Config, error) {
	if c.redis != nil {
		if cached, err := c.redis.Get(ctx, c.key(row.ID)).Result(); err == nil {
			var cfg Config
			if jsonErr := json.Unmarshal([]byte(cached), &cfg); jsonErr == nil {
				return cfg, nil
			}
		}
	}

	cfg, err := ParseConfig(row.Config)
	if err != nil {
		return Config{}, err
	}

	if c.redis != nil {
		if b, err := json.Marshal(cfg); err == nil {
			c.redis.Set(ctx, c.key(row.ID), b, c.ttl)
		}
	}
	return cfg, nil
}

// Invalidate drops the cached config for an automation, called on PATCH.
func (c *ConfigCache) Invalidate(ctx context.Context, automationID string) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, c.key(automationID)).Err(); err != nil {
		return fmt.Errorf("automation: invalidate config cache for %s: %w", automationID, err)
	}
	return nil
}

// InvalidateAll drops every cached config, used when the cache layer needs
// a hard reset (e.g. after a bulk import).
func (c *ConfigCache) InvalidateAll(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, configCachePrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("automation: scan config cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("automation: invalidate all config cache: %w", err)
	}
	return nil
}
