package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 200

var compareAndDeleteScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

// RedisStore implements Store on a go-redis universal client.
type RedisStore struct {
	client goredis.UniversalClient
}

func NewRedisStore(client goredis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, key, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	return ok, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, unavailable("compare-and-delete", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// One DEL per key keeps cluster mode happy when keys span slots.
	for _, key := range keys {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return unavailable("del", key, err)
		}
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if cc, ok := s.client.(*goredis.ClusterClient); ok {
		keys, err := scanNodes(ctx, cc.ForEachMaster, pattern)
		if err != nil {
			return nil, unavailable("scan", pattern, err)
		}
		return keys, nil
	}

	keys, err := scanAll(ctx, s.client, pattern)
	if err != nil {
		return nil, unavailable("scan", pattern, err)
	}
	return keys, nil
}

type nodeVisitor func(ctx context.Context, fn func(ctx context.Context, node *goredis.Client) error) error

// scanNodes scans every node visit yields. ClusterClient.ForEachMaster calls
// fn concurrently, one goroutine per master.
func scanNodes(ctx context.Context, visit nodeVisitor, pattern string) ([]string, error) {
	var (
		mu   sync.Mutex
		keys []string
	)
	err := visit(ctx, func(ctx context.Context, node *goredis.Client) error {
		found, err := scanAll(ctx, node, pattern)
		mu.Lock()
		keys = append(keys, found...)
		mu.Unlock()
		return err
	})
	return keys, err
}

func scanAll(ctx context.Context, client goredis.Cmdable, pattern string) ([]string, error) {
	var keys []string
	iter := client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
