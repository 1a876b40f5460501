package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyLen = 100

// RedisStore keeps the latest document per name plus a capped history list.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. Default is "detectbench".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires documents after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "detectbench"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewRedisStoreFromAddr(addr string, opts ...RedisOption) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), opts...)
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + name
}

func (s *RedisStore) historyKey(name string) string {
	return s.prefix + ":history:" + name
}

func (s *RedisStore) Save(ctx context.Context, name string, doc []byte) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(name), doc, s.ttl)
	pipe.LPush(ctx, s.historyKey(name), doc)
	pipe.LTrim(ctx, s.historyKey(name), 0, historyLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis save failed: %w", err)
	}
	return "redis://" + s.key(name), nil
}

// Load returns the latest document saved under name.
func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return b, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
