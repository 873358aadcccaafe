package store

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "examplan/internal/log"
)

const watchDebounce = 250 * time.Millisecond

// Watch calls fn with the key whenever another process rewrites one of the
// key files in f's directory. Writes made through f itself are ignored.
// It blocks until ctx is done or the watcher fails to start.
func (f *File) Watch(ctx context.Context, fn func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(f.dir); err != nil {
		return err
	}
	appLog.Debug("store watcher started", "dir", f.dir)

	var (
		mu     sync.Mutex
		timers = map[string]*time.Timer{}
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	fire := func(key string) {
		if ctx.Err() != nil {
			return
		}
		if !f.changed(key) {
			return
		}
		appLog.Info("store changed on disk", "key", key)
		fn(key)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			key, ok := keyForPath(ev.Name)
			if !ok {
				continue
			}
			mu.Lock()
			if t, exists := timers[key]; exists {
				t.Reset(watchDebounce)
			} else {
				timers[key] = time.AfterFunc(watchDebounce, func() { fire(key) })
			}
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				appLog.Warn("store watch error", "err", err, "dir", f.dir)
			}
		}
	}
}
