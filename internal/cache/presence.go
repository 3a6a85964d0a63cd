package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceTTL - сколько живет отметка присутствия без heartbeat
const PresenceTTL = 300 * time.Second

// KEYS: счетчик соединений, статус, отметка ручного offline. ARGV[1] - TTL в мс.
// Скрипты возвращают новый статус, если он изменился, иначе "".

var connectScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
if n == 1 then
	redis.call("DEL", KEYS[3])
end
if redis.call("EXISTS", KEYS[3]) == 1 then
	redis.call("PEXPIRE", KEYS[2], ARGV[1])
	return ""
end
local prev = redis.call("GET", KEYS[2])
redis.call("SET", KEYS[2], "online", "PX", ARGV[1])
if prev == "online" then
	return ""
end
return "online"
`)

var disconnectScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n > 0 then
	return ""
end
redis.call("DEL", KEYS[1], KEYS[3])
local prev = redis.call("GET", KEYS[2])
redis.call("SET", KEYS[2], "offline", "PX", ARGV[1])
if prev == "offline" then
	return ""
end
return "offline"
`)

var heartbeatScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if redis.call("EXISTS", KEYS[3]) == 1 then
	redis.call("PEXPIRE", KEYS[3], ARGV[1])
	redis.call("SET", KEYS[2], "offline", "PX", ARGV[1])
	return ""
end
local prev = redis.call("GET", KEYS[2])
redis.call("SET", KEYS[2], "online", "PX", ARGV[1])
if prev == "online" then
	return ""
end
return "online"
`)

// PresenceStore - online/offline пользователя с TTL и счетчиком живых соединений
type PresenceStore struct {
	client redis.UniversalClient
	keys   keyspace
	ttl    time.Duration
}

func NewPresenceStore(client redis.UniversalClient, prefix string) *PresenceStore {
	return &PresenceStore{client: client, keys: keyspace(prefix), ttl: PresenceTTL}
}

func (s *PresenceStore) Set(ctx context.Context, userID, status string) error {
	return s.client.Set(ctx, s.keys.key("presence", userID), status, s.ttl).Err()
}

// Get возвращает статус или "" если записи нет
func (s *PresenceStore) Get(ctx context.Context, userID string) (string, error) {
	status, err := s.client.Get(ctx, s.keys.key("presence", userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return status, err
}

// Connect учитывает новое соединение. Первое соединение снимает ручной offline.
func (s *PresenceStore) Connect(ctx context.Context, userID string) (changed string, err error) {
	return s.run(ctx, connectScript, userID)
}

// Disconnect снимает соединение; offline пишется только когда соединений не осталось
func (s *PresenceStore) Disconnect(ctx context.Context, userID string) (changed string, err error) {
	return s.run(ctx, disconnectScript, userID)
}

// Touch - heartbeat живого соединения: возвращает online, если пользователь сам не выбрал offline
func (s *PresenceStore) Touch(ctx context.Context, userID string) (changed string, err error) {
	return s.run(ctx, heartbeatScript, userID)
}

// SetManualOffline отмечает, что пользователь сам выбрал offline
func (s *PresenceStore) SetManualOffline(ctx context.Context, userID string, on bool) error {
	if on {
		return s.client.Set(ctx, s.manualKey(userID), "1", s.ttl).Err()
	}
	return s.client.Del(ctx, s.manualKey(userID)).Err()
}

// Connections - число живых соединений пользователя по всем экземплярам
func (s *PresenceStore) Connections(ctx context.Context, userID string) (int64, error) {
	n, err := s.client.Get(ctx, s.keys.key("presence_conns", userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *PresenceStore) manualKey(userID string) string {
	return s.keys.key("presence_manual", userID)
}

func (s *PresenceStore) run(ctx context.Context, script *redis.Script, userID string) (string, error) {
	keys := []string{
		s.keys.key("presence_conns", userID),
		s.keys.key("presence", userID),
		s.manualKey(userID),
	}
	return script.Run(ctx, s.client, keys, strconv.FormatInt(s.ttl.Milliseconds(), 10)).Text()
}
