// Package store persists the current schedule and the schedule history as
// two independent JSON values in a small key-value backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"examplan/internal/config"
)

// Fixed slot names.
const (
	KeyCurrentSchedule = "current-schedule"
	KeyScheduleHistory = "schedule-history"
)

var (
	// ErrNotFound is returned by Backend.Get when a key was never written.
	ErrNotFound = errors.New("store: key not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
	// ErrInvalidKey rejects keys that cannot be mapped onto the backend.
	ErrInvalidKey = errors.New("store: invalid key")
)

// Backend is a durable byte-string key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemory(), nil
	case config.DriverFile, "":
		return OpenFile(cfg.Path)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case config.DriverRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// validKey allows the characters used by the fixed slot names so that file
// names and redis keys stay predictable.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
