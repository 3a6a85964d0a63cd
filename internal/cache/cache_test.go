package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisForTest(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockService_Exclusive(t *testing.T) {
	_, client := newRedisForTest(t)
	locks := NewLockService(client, "test")
	ctx := context.Background()

	ok, token, err := locks.AcquireLock(ctx, "open_shift:1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	ok, _, err = locks.AcquireLock(ctx, "open_shift:1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "второй захват до освобождения невозможен")

	released, err := locks.ReleaseLock(ctx, "open_shift:1", token)
	require.NoError(t, err)
	assert.True(t, released)

	ok, _, err = locks.AcquireLock(ctx, "open_shift:1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "после освобождения захват снова возможен")
}

func TestLockService_ForeignTokenIsNoop(t *testing.T) {
	mr, client := newRedisForTest(t)
	locks := NewLockService(client, "test")
	ctx := context.Background()

	ok, token, err := locks.AcquireLock(ctx, "open_shift:2", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := locks.ReleaseLock(ctx, "open_shift:2", "not-the-owner")
	require.NoError(t, err)
	assert.False(t, released)

	value, err := mr.Get("test:lock:open_shift:2")
	require.NoError(t, err)
	assert.Equal(t, token, value, "блокировка должна остаться у владельца")
}

func TestLockService_ExpiresAfterTTL(t *testing.T) {
	mr, client := newRedisForTest(t)
	locks := NewLockService(client, "test")
	ctx := context.Background()

	ok, _, err := locks.AcquireLock(ctx, "open_shift:3", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, _, err = locks.AcquireLock(ctx, "open_shift:3", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockService_ConcurrentAcquireSingleWinner(t *testing.T) {
	_, client := newRedisForTest(t)
	locks := NewLockService(client, "test")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := locks.AcquireLock(context.Background(), "open_shift:4", time.Minute)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	mr, client := newRedisForTest(t)
	limiter := NewRateLimiter(client, "test")
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res, err := limiter.CheckRateLimit(ctx, "u1", "respond", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "запрос %d в пределах лимита", i)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := limiter.CheckRateLimit(ctx, "u1", "respond", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "N+1 запрос должен быть отклонен")
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, time.Minute, res.ResetIn)

	other, err := limiter.CheckRateLimit(ctx, "u2", "respond", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "счетчики разных пользователей независимы")

	mr.FastForward(61 * time.Second)

	res, err = limiter.CheckRateLimit(ctx, "u1", "respond", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "после истечения окна счетчик сбрасывается")
	assert.Equal(t, int64(2), res.Remaining)
}

func TestPresenceStore_TTL(t *testing.T) {
	mr, client := newRedisForTest(t)
	store := NewPresenceStore(client, "test")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "u1", "online"))
	status, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "online", status)

	mr.FastForward(200 * time.Second)
	changed, err := store.Touch(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, changed, "уже online")

	mr.FastForward(200 * time.Second)
	status, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "online", status, "heartbeat продлевает присутствие")

	mr.FastForward(PresenceTTL)
	status, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestPresenceStore_OfflineOnlyAfterLastConnection(t *testing.T) {
	_, client := newRedisForTest(t)
	store := NewPresenceStore(client, "test")
	ctx := context.Background()

	changed, err := store.Connect(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "online", changed)
	changed, err = store.Connect(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, changed)

	changed, err = store.Disconnect(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, changed, "одно соединение еще живо")
	status, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "online", status)

	changed, err = store.Disconnect(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "offline", changed)
	n, err := store.Connections(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPresenceStore_TouchRestoresOnlineUnlessChosenOffline(t *testing.T) {
	_, client := newRedisForTest(t)
	store := NewPresenceStore(client, "test")
	ctx := context.Background()

	_, err := store.Connect(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "u1", "offline"))

	changed, err := store.Touch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "online", changed)

	require.NoError(t, store.SetManualOffline(ctx, "u1", true))
	require.NoError(t, store.Set(ctx, "u1", "offline"))
	changed, err = store.Touch(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, changed)
	status, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "offline", status)
}

func TestPendingStore_DrainKeepsOrder(t *testing.T) {
	_, client := newRedisForTest(t)
	store := NewPendingStore(client, "test")
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "u1", []byte(`{"n":1}`)))
	require.NoError(t, store.Push(ctx, "u1", []byte(`{"n":2}`)))

	items, err := store.Drain(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.JSONEq(t, `{"n":1}`, string(items[0]))
	assert.JSONEq(t, `{"n":2}`, string(items[1]))

	n, err := store.Len(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJSONCache_GetSetInvalidate(t *testing.T) {
	mr, client := newRedisForTest(t)
	c := NewJSONCache(client, "test", "metrics", time.Hour)
	ctx := context.Background()

	var out struct{ Total int }
	found, err := c.Get(ctx, "s1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "s1", map[string]int{"Total": 7}))
	found, err = c.Get(ctx, "s1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, out.Total)
	assert.Equal(t, time.Hour, mr.TTL("test:metrics:s1"))

	require.NoError(t, c.Invalidate(ctx, "s1"))
	found, err = c.Get(ctx, "s1", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBroadcaster_Route(t *testing.T) {
	b := NewBroadcaster(nil, "test")

	scope, id, ok := b.Route("test:rt:user:u1")
	assert.True(t, ok)
	assert.Equal(t, "user", scope)
	assert.Equal(t, "u1", id)

	scope, id, ok = b.Route("test:rt:dept:icu")
	assert.True(t, ok)
	assert.Equal(t, "dept", scope)
	assert.Equal(t, "icu", id)

	_, _, ok = b.Route("other:channel")
	assert.False(t, ok)
}
