package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appLog "examplan/internal/log"
	"examplan/internal/metrics"
)

// Status classifies the outcome of a Load.
type Status int

const (
	StatusLoaded Status = iota
	StatusAbsent
	StatusCorrupt
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusAbsent:
		return "absent"
	case StatusCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// LoadResult carries the Status and, for StatusCorrupt, the cause.
type LoadResult struct {
	Status Status
	Err    error
}

// Adapter serializes typed values into a Backend. Loads never fail: a
// missing or unreadable value is reported as Absent or Corrupt and the
// caller falls back to an empty default.
type Adapter struct {
	backend Backend
	rec     *metrics.Recorder
}

// NewAdapter wraps b. rec may be nil.
func NewAdapter(b Backend, rec *metrics.Recorder) *Adapter {
	return &Adapter{backend: b, rec: rec}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend { return a.backend }

// Load reads key and decodes it as T. On anything but StatusLoaded the
// zero value of T is returned.
func Load[T any](ctx context.Context, a *Adapter, key string) (T, LoadResult) {
	var out T
	res := a.load(ctx, key, func(data []byte) error {
		return json.Unmarshal(data, &out)
	})
	if res.Status != StatusLoaded {
		var empty T
		return empty, res
	}
	return out, res
}

func (a *Adapter) load(ctx context.Context, key string, decode func([]byte) error) LoadResult {
	res := a.read(ctx, key, decode)
	if a != nil {
		a.rec.IncStoreLoad(key, res.Status.String())
	}
	switch res.Status {
	case StatusAbsent:
		appLog.Debug("store value absent", "key", key)
	case StatusCorrupt:
		appLog.Error("store value unreadable; starting empty", res.Err, "key", key)
	}
	return res
}

func (a *Adapter) read(ctx context.Context, key string, decode func([]byte) error) LoadResult {
	if a == nil || a.backend == nil {
		return LoadResult{Status: StatusAbsent}
	}
	data, err := a.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return LoadResult{Status: StatusAbsent}
	}
	if err != nil {
		return LoadResult{Status: StatusCorrupt, Err: fmt.Errorf("read %s: %w", key, err)}
	}
	if len(data) == 0 {
		return LoadResult{Status: StatusAbsent}
	}
	if err := decode(data); err != nil {
		return LoadResult{Status: StatusCorrupt, Err: fmt.Errorf("decode %s: %w", key, err)}
	}
	return LoadResult{Status: StatusLoaded}
}

// Save encodes v as JSON and writes it under key. Failures are logged and
// counted before being returned; callers are free to ignore them.
func (a *Adapter) Save(ctx context.Context, key string, v any) error {
	if a == nil || a.backend == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err == nil {
		err = a.backend.Put(ctx, key, data)
	}
	if err != nil {
		a.rec.IncStoreSaveFailure(key)
		appLog.Error("store write failed", err, "key", key)
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Close closes the backend.
func (a *Adapter) Close() error {
	if a == nil || a.backend == nil {
		return nil
	}
	return a.backend.Close()
}
