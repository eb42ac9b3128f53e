package redis

import (
	"context"
	"time"

	"converso/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client used for cross-instance caching
type Client struct {
	client *redis.Client
}

// NewClient creates a redis client from the application configuration
func NewClient() *Client {
	cfg := config.Get()
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	return &Client{client: client}
}

// Set stores a value with an expiration
func (r *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value; returns redis.Nil error when the key is absent
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Del removes a key
func (r *Client) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Ping verifies connectivity
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// IsNotFound reports whether the error means the key was absent
func IsNotFound(err error) bool {
	return err == redis.Nil
}
