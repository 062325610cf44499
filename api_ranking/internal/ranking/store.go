package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

type Store interface {
	Upsert(ctx context.Context, namespace, member string, score float64) error
	// ReverseRank is the 0-indexed position by descending score; ok is false
	// when the member is absent.
	ReverseRank(ctx context.Context, namespace, member string) (rank int64, ok bool, err error)
	Range(ctx context.Context, namespace string) ([]string, error)
	Remove(ctx context.Context, namespace string, members ...string) error
	Count(ctx context.Context, namespace string) (int64, error)
}

func setKey(namespace string) string {
	return "lookout:ranking:" + namespace
}

// RedisStore keeps one sorted set per namespace.
type RedisStore struct {
	client goredis.UniversalClient
}

func NewRedisStore(client goredis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Upsert(ctx context.Context, namespace, member string, score float64) error {
	if err := s.client.ZAdd(ctx, setKey(namespace), goredis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", member, err)
	}
	return nil
}

func (s *RedisStore) ReverseRank(ctx context.Context, namespace, member string) (int64, bool, error) {
	rank, err := s.client.ZRevRank(ctx, setKey(namespace), member).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zrevrank %s: %w", member, err)
	}
	return rank, true, nil
}

func (s *RedisStore) Range(ctx context.Context, namespace string) ([]string, error) {
	members, err := s.client.ZRange(ctx, setKey(namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", namespace, err)
	}
	return members, nil
}

func (s *RedisStore) Remove(ctx context.Context, namespace string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.ZRem(ctx, setKey(namespace), args...).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", namespace, err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context, namespace string) (int64, error) {
	n, err := s.client.ZCard(ctx, setKey(namespace)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", namespace, err)
	}
	return n, nil
}

// MemoryStore is the in-process Store. Ties order like Redis: members with
// equal scores rank by descending member string.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string]map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]map[string]float64)}
}

func (s *MemoryStore) Upsert(_ context.Context, namespace, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[namespace]
	if !ok {
		set = make(map[string]float64)
		s.sets[namespace] = set
	}
	set[member] = score
	return nil
}

func (s *MemoryStore) ReverseRank(_ context.Context, namespace, member string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[namespace]
	score, ok := set[member]
	if !ok {
		return 0, false, nil
	}
	var rank int64
	for m, sc := range set {
		if sc > score || (sc == score && m > member) {
			rank++
		}
	}
	return rank, true, nil
}

func (s *MemoryStore) Range(_ context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[namespace]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if set[members[i]] != set[members[j]] {
			return set[members[i]] < set[members[j]]
		}
		return members[i] < members[j]
	})
	return members, nil
}

func (s *MemoryStore) Remove(_ context.Context, namespace string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		delete(s.sets[namespace], m)
	}
	return nil
}

func (s *MemoryStore) Count(_ context.Context, namespace string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[namespace])), nil
}
