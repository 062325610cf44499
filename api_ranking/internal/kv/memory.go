package kv

import (
	"context"
	"path"
	"time"

	"frameworks/pkg/cache"
)

// MemoryStore is a single-process Store on pkg/cache, used when no Redis is
// configured. Markers and dedup entries are then only per-instance.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore builds an empty store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{c: cache.New(cache.Options{Now: now})}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.c.Peek(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.c.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.c.SetIfAbsent(key, value, ttl), nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	return s.c.DeleteIf(key, func(v any) bool { return v == value }), nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.c.Delete(key)
	}
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	return s.c.Keys(func(key string) bool {
		ok, err := path.Match(pattern, key)
		return err == nil && ok
	}), nil
}

// Sweep drops expired entries; Redis does this on its own.
func (s *MemoryStore) Sweep() int {
	return s.c.Sweep()
}
