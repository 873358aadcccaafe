package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each key as a plain string value under prefix+key.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects to addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("store: redis driver needs storage.redis_addr")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", addr, err)
	}
	return NewRedis(rdb, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if errors.Is(err, redis.ErrClosed) {
		return nil, ErrClosed
	}
	return v, err
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err()
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
