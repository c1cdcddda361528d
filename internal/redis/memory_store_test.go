package redis_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/redis"
)

func newTestStore(t *testing.T) *redis.MemoryStore {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := redis.NewMemoryStore(logger)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemoryStore_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "auth:code:missing")
	require.ErrorIs(t, err, redis.ErrCacheMiss)

	require.NoError(t, store.Put(ctx, "auth:code:abc", []byte("grant"), time.Minute))

	got, err := store.Get(ctx, "auth:code:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("grant"), got)

	require.NoError(t, store.Delete(ctx, "auth:code:abc"))
	require.NoError(t, store.Delete(ctx, "auth:code:abc"), "delete is idempotent")

	_, err = store.Get(ctx, "auth:code:abc")
	assert.ErrorIs(t, err, redis.ErrCacheMiss)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "short", []byte("v"), 20*time.Millisecond))
	require.NoError(t, store.Put(ctx, "forever", []byte("v"), 0))

	time.Sleep(40 * time.Millisecond)

	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, redis.ErrCacheMiss)

	_, err = store.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryStore_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ok, err := store.PutIfAbsent(ctx, "k", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.PutIfAbsent(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestMemoryStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "k", []byte("v1"), time.Minute))

	ok, err := store.CompareAndDelete(ctx, "k", []byte("other"))
	require.NoError(t, err)
	assert.False(t, ok, "mismatched value must not delete")

	ok, err = store.CompareAndDelete(ctx, "k", []byte("v1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CompareAndDelete(ctx, "k", []byte("v1"))
	require.NoError(t, err)
	assert.False(t, ok, "second delete must fail")
}

func TestMemoryStore_CompareAndDeleteSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, "auth:code:race", []byte("grant"), time.Minute))

	const workers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.CompareAndDelete(ctx, "auth:code:race", []byte("grant"))
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ok, err := store.CompareAndSwap(ctx, "missing", []byte("a"), []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "k", []byte("a"), time.Minute))

	ok, err = store.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CompareAndSwap(ctx, "k", []byte("a"), []byte("c"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected value must lose")

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestMemoryStore_Scan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "auth:rate_limit:login:ip:1.2.3.4", []byte("1"), time.Minute))
	require.NoError(t, store.Put(ctx, "auth:rate_limit:api:user:1", []byte("1"), time.Minute))
	require.NoError(t, store.Put(ctx, "auth:code:x", []byte("1"), time.Minute))

	keys, err := store.Scan(ctx, "auth:rate_limit:")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth:rate_limit:api:user:1", "auth:rate_limit:login:ip:1.2.3.4"}, keys)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryStore_Close(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Ping(ctx), redis.ErrStoreClosed)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.ErrStoreClosed)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	type payload struct {
		Name string `json:"name"`
	}

	require.NoError(t, redis.PutJSON(ctx, store, "k", payload{Name: "demo"}, time.Minute))

	var out payload
	raw, err := redis.GetJSON(ctx, store, "k", &out)
	require.NoError(t, err)
	assert.Equal(t, "demo", out.Name)
	assert.JSONEq(t, `{"name":"demo"}`, string(raw))

	_, err = redis.GetJSON(ctx, store, "missing", &out)
	assert.ErrorIs(t, err, redis.ErrCacheMiss)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", redis.MaskToken("short"))
	assert.Equal(t, "abc1***x789", redis.MaskToken("abc123xyz789"))
}
