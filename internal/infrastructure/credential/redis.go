package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccess  = "access"
	fieldRefresh = "refresh"
)

// RedisStore keeps the pair in a Redis hash so several client processes
// (CLI, watchers) can share one session.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	profile   string
	ttl       time.Duration
}

// RedisConfig holds configuration for the Redis credential store
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Profile   string        // session name, default "default"
	TTL       time.Duration // 0 keeps the pair until cleared
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis for credential store: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.Profile, cfg.TTL), nil
}

// NewRedisStoreWithClient creates a store with an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, keyPrefix, profile string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "portal:credentials:"
	}
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		profile:   profile,
		ttl:       ttl,
	}
}

func (s *RedisStore) key() string {
	return s.keyPrefix + s.profile
}

// Get reads the pair from the hash
func (s *RedisStore) Get(ctx context.Context) (Pair, error) {
	values, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	return Pair{Access: values[fieldAccess], Refresh: values[fieldRefresh]}, nil
}

// Set replaces the hash in one transaction
func (s *RedisStore) Set(ctx context.Context, pair Pair) error {
	key := s.key()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldAccess, pair.Access, fieldRefresh, pair.Refresh)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// Clear deletes the hash
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
