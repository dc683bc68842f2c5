package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wholesale:products"

// Cache wraps Redis helpers for JSON payloads. Keys are namespaced by shop and
// a per-shop generation so a save can drop every cached page with one INCR.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client or non-positive TTL
// disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// PageKey builds the key for one listing page of a shop.
func (c *Cache) PageKey(ctx context.Context, shop string, first int, after string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(shop)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%s:v%d:%d:%s", keyPrefix, shop, gen, first, after), nil
}

// Bump advances the shop generation, orphaning previously cached pages.
func (c *Cache) Bump(ctx context.Context, shop string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, generationKey(shop)).Err()
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func generationKey(shop string) string {
	return keyPrefix + ":" + shop + ":gen"
}
