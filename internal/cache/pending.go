package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingTTL - сколько хранятся in-app сообщения для офлайн пользователя
const PendingTTL = 7 * 24 * time.Hour

// PendingStore - список in-app сообщений, ожидающих подключения пользователя
type PendingStore struct {
	client redis.UniversalClient
	keys   keyspace
}

func NewPendingStore(client redis.UniversalClient, prefix string) *PendingStore {
	return &PendingStore{client: client, keys: keyspace(prefix)}
}

func (s *PendingStore) Push(ctx context.Context, userID string, payload []byte) error {
	key := s.keys.key("pending", userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, PendingTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Drain забирает и удаляет все сообщения в порядке добавления
func (s *PendingStore) Drain(ctx context.Context, userID string) ([][]byte, error) {
	key := s.keys.key("pending", userID)
	pipe := s.client.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	values := items.Val()
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (s *PendingStore) Len(ctx context.Context, userID string) (int64, error) {
	return s.client.LLen(ctx, s.keys.key("pending", userID)).Result()
}
