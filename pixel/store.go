package pixel

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps the seen-key sets of one visitor session.
type Store interface {
	// Add records key in set and reports whether it was absent.
	Add(ctx context.Context, set, key string) (bool, error)
	// Remove forgets key so the next Add succeeds again.
	Remove(ctx context.Context, set, key string) error
	// AddWithin records key unless it was recorded less than window ago.
	AddWithin(ctx context.Context, set, key string, window time.Duration, now time.Time) (bool, error)
}

// MemoryStore is an in-process Store for a single session.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string]map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]map[string]time.Time)}
}

func (m *MemoryStore) set(name string) map[string]time.Time {
	s, ok := m.sets[name]
	if !ok {
		s = make(map[string]time.Time)
		m.sets[name] = s
	}
	return s
}

func (m *MemoryStore) Add(_ context.Context, set, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.set(set)
	if _, ok := s[key]; ok {
		return false, nil
	}
	s[key] = time.Now()
	return true, nil
}

func (m *MemoryStore) Remove(_ context.Context, set, key string) error {
	m.mu.Lock()
	delete(m.set(set), key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AddWithin(_ context.Context, set, key string, window time.Duration, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.set(set)
	for k, at := range s {
		if now.Sub(at) >= window {
			delete(s, k)
		}
	}
	if _, ok := s[key]; ok {
		return false, nil
	}
	s[key] = now
	return true, nil
}

// Len returns the number of keys held in set.
func (m *MemoryStore) Len(set string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sets[set])
}

// RedisStore shares the seen-key sets through Redis, one key per entry.
// Plain sets expire after ttl; windowed entries expire after their window.
type RedisStore struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore scopes keys under prefix, typically "pixel:<session id>".
func NewRedisStore(rc *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rc: rc, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(set, key string) string {
	return r.prefix + ":" + set + ":" + key
}

func (r *RedisStore) Add(ctx context.Context, set, key string) (bool, error) {
	return r.rc.SetNX(ctx, r.key(set, key), "1", r.ttl).Result()
}

func (r *RedisStore) Remove(ctx context.Context, set, key string) error {
	return r.rc.Del(ctx, r.key(set, key)).Err()
}

func (r *RedisStore) AddWithin(ctx context.Context, set, key string, window time.Duration, now time.Time) (bool, error) {
	return r.rc.SetNX(ctx, r.key(set, key), now.Unix(), window).Result()
}
