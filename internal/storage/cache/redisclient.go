// Package cache adds a Redis read-aside layer in front of the device
// registration store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 2 * time.Second

// Client defines the subset of Redis commands the read-aside layer needs.
// Values are stored as JSON, so Get and Set speak the caller's types.
type Client interface {
	// Get unmarshals the value at key into dest. A miss comes back as an
	// error, never as a zero value.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set marshals value and stores it under key for the given TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del drops the keys. Variadic so a token reassignment can invalidate
	// both owners in one round trip.
	Del(ctx context.Context, keys ...string) error
}

// RedisClient backs the Client interface with go-redis.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects and pings, so a bad address surfaces at startup
// rather than on the first cached read.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{rdb: rdb}, nil
}

func (c *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil lands here too; the decorator treats any error as a miss.
		return err
	}
	return json.Unmarshal(val, dest)
}

func (c *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, bytes, ttl).Err()
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
