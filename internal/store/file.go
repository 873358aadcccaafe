package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"examplan/internal/config"
)

const fileExt = ".json"

// File stores each key as <dir>/<key>.json, replaced atomically on write.
type File struct {
	dir string

	mu     sync.Mutex
	closed bool
	// sums remembers the content last read or written per key so that the
	// watcher can ignore our own writes.
	sums map[string][sha256.Size]byte
}

// OpenFile prepares dir (0700) and returns a file backend rooted there.
func OpenFile(dir string) (*File, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("store: file driver needs storage.path")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &File{dir: dir, sums: map[string][sha256.Size]byte{}}, nil
}

// Dir is the directory holding the key files.
func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.sums[key] = sha256.Sum256(data)
	return data, nil
}

func (f *File) Put(_ context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := config.WriteFileAtomic(f.path(key), value, "."+key+"-*.tmp"); err != nil {
		return err
	}
	f.sums[key] = sha256.Sum256(value)
	return nil
}

func (f *File) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// changed reports whether the file for key differs from what this process
// last read or wrote.
func (f *File) changed(key string) bool {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	sum := sha256.Sum256(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.sums[key]
	return !ok || prev != sum
}

// keyForPath maps a file name in dir back to its key. Temp files and
// foreign files are rejected.
func keyForPath(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	key := strings.TrimSuffix(base, fileExt)
	if validKey(key) != nil {
		return "", false
	}
	return key, true
}
