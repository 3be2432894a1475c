// Package ratelimit implements fixed-window request counting.
//
// A window opens on the first hit for a key (or the first hit after the
// previous window elapsed) and admits requests while the count is at most
// the limit.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	cache "github.com/go-pkgz/expirable-cache"
	"github.com/redis/go-redis/v9"
)

// Limiter is injected into the HTTP layer; there is no package-level instance.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) error
}

type window struct {
	count   int
	resetAt time.Time
}

// Memory counts hits in process. Keys are bounded by maxKeys and expire with
// their window, so idle clients do not accumulate.
type Memory struct {
	mu      sync.Mutex
	windows cache.Cache
	now     func() time.Time
}

func NewMemory(maxKeys int) (*Memory, error) {
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	c, err := cache.NewCache(cache.LRU(), cache.MaxKeys(maxKeys))
	if err != nil {
		return nil, fmt.Errorf("create limiter cache: %w", err)
	}
	return &Memory{windows: c, now: time.Now}, nil
}

func (m *Memory) Check(_ context.Context, key string, limit int, win time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var w *window
	if v, ok := m.windows.Get(key); ok {
		w, _ = v.(*window)
	}
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		m.windows.Set(key, w, win)
	}
	w.count++
	if w.count > limit {
		return domain.ErrRateLimited
	}
	return nil
}

// Redis shares windows across replicas. The counter and its TTL are set in
// one script so a key can never be left without an expiry.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

var errRedisUnavailable = errors.New("rate limit store unavailable")

// windowScript increments KEYS[1] and arms its TTL (ARGV[1] ms) when the key
// has none.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

func (r *Redis) Check(ctx context.Context, key string, limit int, win time.Duration) error {
	count, err := windowScript.Run(ctx, r.client, []string{r.prefix + key}, win.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	if count > int64(limit) {
		return domain.ErrRateLimited
	}
	return nil
}
