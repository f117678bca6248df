// Package cache keeps the latest aggregate of each union in Redis for readers that must not hit the ledger store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"dataunion/internal/model"
)

const keyPrefix = "dataunion:union:"

// Config holds Redis connection settings. A zero TTL keeps entries until overwritten.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type kv interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// UnionCache stores union snapshots as JSON under dataunion:union:<address>.
type UnionCache struct {
	client kv
	ttl    time.Duration
}

// NewUnionCache connects to Redis and checks the connection.
func NewUnionCache(ctx context.Context, cfg Config) (*UnionCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &UnionCache{client: client, ttl: cfg.TTL}, nil
}

// UnionKey returns the cache key of a union.
func UnionKey(addr common.Address) string {
	return keyPrefix + strings.ToLower(addr.Hex())
}

// PublishUnion writes the snapshot of u.
func (c *UnionCache) PublishUnion(ctx context.Context, u model.Union) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal union: %w", err)
	}
	if err := c.client.Set(ctx, UnionKey(u.Address), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", u.Address.Hex(), err)
	}
	return nil
}

// Get returns the cached snapshot of a union, ok=false when absent.
func (c *UnionCache) Get(ctx context.Context, addr common.Address) (model.Union, bool, error) {
	data, err := c.client.Get(ctx, UnionKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Union{}, false, nil
		}
		return model.Union{}, false, fmt.Errorf("get %s: %w", addr.Hex(), err)
	}
	var u model.Union
	if err := json.Unmarshal(data, &u); err != nil {
		return model.Union{}, false, fmt.Errorf("unmarshal union %s: %w", addr.Hex(), err)
	}
	return u, true, nil
}

func (c *UnionCache) Close() error {
	return c.client.Close()
}
