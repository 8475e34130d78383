package clientstore

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values in Redis under a namespace prefix, so several
// installations can share one Redis instance.
type RedisStore struct {
	client    *redis.Client
	namespace string
	owned     bool
}

var _ Store = &RedisStore{}

// NewRedisStore connects to addr. The store owns the client and closes it on Close.
func NewRedisStore(addr string, namespace string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis client store: empty addr")
	}
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: addr}), namespace)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client; Close leaves it open.
func NewRedisStoreFromClient(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "deckhand"
	}
	return &RedisStore{client: client, namespace: strings.TrimSuffix(namespace, ":") + ":"}
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, errors.New("redis client store: client is nil")
	}
	if key == "" {
		return "", false, errors.New("redis client store: key is empty")
	}
	v, err := s.client.Get(ctx, s.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis client store: get")
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.client == nil {
		return errors.New("redis client store: client is nil")
	}
	if key == "" {
		return errors.New("redis client store: key is empty")
	}
	if err := s.client.Set(ctx, s.namespace+key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis client store: set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil || s.client == nil {
		return errors.New("redis client store: client is nil")
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, s.namespace+key)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, "redis client store: delete")
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis client store: client is nil")
	}
	match := escapeGlob(s.namespace+prefix) + "*"
	seen := map[string]struct{}{}
	out := []string{}
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.namespace)
		// SCAN may return a key more than once.
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "redis client store: scan")
	}
	sort.Strings(out)
	return out, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
