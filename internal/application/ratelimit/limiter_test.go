package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FixedWindow(t *testing.T) {
	m, err := NewMemory(10)
	require.NoError(t, err)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Check(ctx, "login:1.2.3.4", 3, time.Minute))
	}
	err = m.Check(ctx, "login:1.2.3.4", 3, time.Minute)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))

	// Other keys are counted separately.
	require.NoError(t, m.Check(ctx, "login:5.6.7.8", 3, time.Minute))

	// A new window starts once the old one has elapsed.
	now = now.Add(time.Minute)
	require.NoError(t, m.Check(ctx, "login:1.2.3.4", 3, time.Minute))
}

func TestMemory_BoundedKeys(t *testing.T) {
	m, err := NewMemory(2)
	require.NoError(t, err)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Check(ctx, k, 1, time.Minute))
	}
	assert.LessOrEqual(t, m.windows.Len(), 2)
}

func TestMemory_Concurrent(t *testing.T) {
	m, err := NewMemory(10)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Check(ctx, "otp:ip", 10, time.Minute) == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, admitted)
}

func newRedisLimiter(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, "rl:"), mr
}

func TestRedis_FixedWindow(t *testing.T) {
	r, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, r.Check(ctx, "signup:ip", 2, time.Minute))
	}
	assert.True(t, errors.Is(r.Check(ctx, "signup:ip", 2, time.Minute), domain.ErrRateLimited))
	assert.Equal(t, time.Minute, mr.TTL("rl:signup:ip"))

	mr.FastForward(time.Minute)
	require.NoError(t, r.Check(ctx, "signup:ip", 2, time.Minute))
}

func TestRedis_Unavailable(t *testing.T) {
	r, mr := newRedisLimiter(t)
	mr.Close()
	err := r.Check(context.Background(), "k", 1, time.Minute)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrRateLimited))
}

func TestRedis_ArmsExpiryOnKeyWithoutTTL(t *testing.T) {
	r, mr := newRedisLimiter(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("rl:stuck", "5"))

	require.NoError(t, r.Check(ctx, "stuck", 10, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("rl:stuck"))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists("rl:stuck"))
	require.NoError(t, r.Check(ctx, "stuck", 1, time.Minute))
}
