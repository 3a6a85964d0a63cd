package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONCache - кэш JSON-значений с TTL (метрики очередей)
type JSONCache struct {
	client redis.UniversalClient
	keys   keyspace
	ttl    time.Duration
}

func NewJSONCache(client redis.UniversalClient, prefix, namespace string, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, keys: keyspace(keyspace(prefix).key(namespace)), ttl: ttl}
}

// Get декодирует значение в dst; false если ключа нет
func (c *JSONCache) Get(ctx context.Context, id string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.keys.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *JSONCache) Set(ctx context.Context, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.keys.key(id), raw, c.ttl).Err()
}

func (c *JSONCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.keys.key(id)).Err()
}
