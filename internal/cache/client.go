package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Options - подключение к redis
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient создает клиента и проверяет соединение
func NewClient(ctx context.Context, opts Options) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// keyspace - общий префикс ключей
type keyspace string

func (k keyspace) key(parts ...string) string {
	out := string(k)
	for _, p := range parts {
		if out == "" {
			out = p
			continue
		}
		out += ":" + p
	}
	return out
}

func parseRedisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis integer type %T", v)
	}
}
