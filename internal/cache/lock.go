package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Удаляем ключ, только если он все еще принадлежит владельцу токена
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockService - распределенная блокировка на redis (SET NX + compare-and-delete)
type LockService struct {
	client redis.UniversalClient
	keys   keyspace
}

func NewLockService(client redis.UniversalClient, prefix string) *LockService {
	return &LockService{client: client, keys: keyspace(prefix)}
}

// AcquireLock ставит ключ с новым токеном, только если его нет.
// Возвращает успех и токен владельца.
func (s *LockService) AcquireLock(ctx context.Context, resourceKey string, ttl time.Duration) (bool, string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.keys.key("lock", resourceKey), token, ttl).Result()
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, "", nil
	}
	return true, token, nil
}

// ReleaseLock снимает блокировку, если токен совпадает. Чужой токен - no-op.
func (s *LockService) ReleaseLock(ctx context.Context, resourceKey, token string) (bool, error) {
	res, err := releaseLockScript.Run(ctx, s.client, []string{s.keys.key("lock", resourceKey)}, token).Result()
	if err != nil {
		return false, err
	}
	n, err := parseRedisInt64(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
