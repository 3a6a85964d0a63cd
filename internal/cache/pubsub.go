package cache

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Каналы real-time доставки. Каждый процесс подписан на оба шаблона
// и доставляет сообщения своим websocket-клиентам.
const (
	userChannel       = "rt:user"
	departmentChannel = "rt:dept"
)

// Broadcaster публикует real-time сообщения для всех экземпляров сервиса
type Broadcaster struct {
	client redis.UniversalClient
	keys   keyspace
}

func NewBroadcaster(client redis.UniversalClient, prefix string) *Broadcaster {
	return &Broadcaster{client: client, keys: keyspace(prefix)}
}

func (b *Broadcaster) PublishToUser(ctx context.Context, userID string, payload []byte) error {
	return b.client.Publish(ctx, b.keys.key(userChannel, userID), payload).Err()
}

func (b *Broadcaster) PublishToDepartment(ctx context.Context, departmentID string, payload []byte) error {
	return b.client.Publish(ctx, b.keys.key(departmentChannel, departmentID), payload).Err()
}

// Subscribe подписывается на сообщения пользователей и отделов
func (b *Broadcaster) Subscribe(ctx context.Context) *redis.PubSub {
	return b.client.PSubscribe(ctx,
		b.keys.key(userChannel, "*"),
		b.keys.key(departmentChannel, "*"),
	)
}

// Route разбирает имя канала: ("user"|"dept", id)
func (b *Broadcaster) Route(channel string) (scope, id string, ok bool) {
	for _, c := range []struct{ prefix, scope string }{
		{b.keys.key(userChannel) + ":", "user"},
		{b.keys.key(departmentChannel) + ":", "dept"},
	} {
		if id := strings.TrimPrefix(channel, c.prefix); id != channel && id != "" {
			return c.scope, id, true
		}
	}
	return "", "", false
}
