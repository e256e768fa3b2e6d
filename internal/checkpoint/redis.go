package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix — префикс ключей состояний в Redis.
const DefaultRedisPrefix = "bpmnflow:checkpoint:"

// RedisConfig — параметры подключения RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // 0 — без срока жизни
}

// RedisStore хранит каждое состояние под отдельным ключом Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore создаёт хранилище поверх готового клиента.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// OpenRedis подключается к Redis и проверяет соединение.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, NewPersistenceError("connect", cfg.Addr, err)
	}
	return NewRedisStore(client, cfg.Prefix, cfg.TTL), nil
}

// Close закрывает клиента.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// Save реализует Store.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return NewPersistenceError("save", key, ErrEmptyKey)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return NewPersistenceError("save", key, err)
	}
	return nil
}

// Load реализует Store.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, NewPersistenceError("load", key, ErrEmptyKey)
	}
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, NewPersistenceError("load", key, ErrNotFound)
	}
	if err != nil {
		return nil, NewPersistenceError("load", key, err)
	}
	return data, nil
}

// Delete реализует Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return NewPersistenceError("delete", key, ErrEmptyKey)
	}
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return NewPersistenceError("delete", key, err)
	}
	return nil
}

// Exists реализует Store.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, NewPersistenceError("exists", key, ErrEmptyKey)
	}
	n, err := s.client.Exists(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, NewPersistenceError("exists", key, err)
	}
	return n > 0, nil
}
