package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sellerdesk/seller-front/internal/log"
)

const redisKeyPrefix = "sellerfront:session:"

// RedisStore is a KeyedStore backed by Redis. Record TTL is enforced
// server-side via key expiry.
type RedisStore struct {
	client *redis.Client
}

var _ KeyedStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		log.LogWarnWithFields("tokenstore", "Dropping undecodable redis session record", map[string]any{
			"error": err.Error(),
		})
		return nil, nil
	}
	return &record, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
