package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is a go-redis-backed KV for shared or headless deployments
// where several client processes must see the same credential records.
// Keys are namespaced so one Redis instance can serve multiple installs.
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(addr, password string, db int, namespace string, logger *zap.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", addr))
	}

	return &RedisStore{client: client, namespace: namespace, logger: logger}
}

// Close closes the client.
func (s *RedisStore) Close() {
	if s != nil && s.client != nil {
		_ = s.client.Close()
	}
}

func (s *RedisStore) namespaced(key string) string {
	return fmt.Sprintf("%s:%s", s.namespace, key)
}

// Get returns the stored value for key.
func (s *RedisStore) Get(key string) (string, bool) {
	val, err := s.client.Get(context.Background(), s.namespaced(key)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

// Set stores value under key.
func (s *RedisStore) Set(key, value string) error {
	return s.client.Set(context.Background(), s.namespaced(key), value, 0).Err()
}

// Delete removes key.
func (s *RedisStore) Delete(key string) error {
	return s.client.Del(context.Background(), s.namespaced(key)).Err()
}

// Keys lists stored keys with the given prefix, namespace stripped.
func (s *RedisStore) Keys(prefix string) []string {
	pattern := s.namespaced(prefix) + "*"
	raw, err := s.client.Keys(context.Background(), pattern).Result()
	if err != nil {
		s.logger.Warn("redis keys failed", zap.String("pattern", pattern), zap.Error(err))
		return nil
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k[len(s.namespace)+1:])
	}
	return keys
}
