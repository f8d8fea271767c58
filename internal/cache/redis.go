package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/divergence-scanner/pkg/config"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps the latest snapshot in Redis for other replicas
type RedisStore struct {
	client *redis.Client
	key    string
	logger *logrus.Entry
}

// NewRedisStore creates a new Redis-backed snapshot store
func NewRedisStore(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		key:    cfg.Key,
		logger: logger.WithField("component", "redis"),
	}, nil
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

// Health checks Redis health
func (rs *RedisStore) Health(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Load returns the stored snapshot, or nil when there is none
func (rs *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	found, err := rs.getJSON(ctx, rs.key, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

// Store publishes snap; Redis expires it after ttl
func (rs *RedisStore) Store(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	return rs.setJSON(ctx, rs.key, snap, ttl)
}

func (rs *RedisStore) setJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return rs.client.Set(ctx, key, data, expiration).Err()
}

func (rs *RedisStore) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rs.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}
