package watcher

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// notifyBackend watches parent directories so that files created after the
// watch started, or replaced by rename, are still seen
type notifyBackend struct {
	fsw    *fsnotify.Watcher
	logger *zap.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]int
}

func newNotifyBackend(logger *zap.Logger) (*notifyBackend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &notifyBackend{
		fsw:    fsw,
		logger: logger,
		files:  make(map[string]bool),
		dirs:   make(map[string]int),
	}, nil
}

func (b *notifyBackend) watch(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.files[path] {
		return nil
	}
	dir := filepath.Dir(path)
	if b.dirs[dir] == 0 {
		if err := b.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	b.dirs[dir]++
	b.files[path] = true
	return nil
}

func (b *notifyBackend) unwatch(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.files[path] {
		return nil
	}
	delete(b.files, path)
	dir := filepath.Dir(path)
	b.dirs[dir]--
	if b.dirs[dir] > 0 {
		return nil
	}
	delete(b.dirs, dir)
	if err := b.fsw.Remove(dir); err != nil {
		return fmt.Errorf("failed to unwatch directory %s: %w", dir, err)
	}
	return nil
}

func (b *notifyBackend) tracked(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.files[path]
}

func (b *notifyBackend) run(stop <-chan struct{}, emit func(rawEvent)) {
	for {
		select {
		case <-stop:
			return

		case ev, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Name)
			if !b.tracked(path) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				emit(rawEvent{path: path, op: OpAdd})
			case ev.Has(fsnotify.Write):
				emit(rawEvent{path: path, op: OpChange})
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				emit(rawEvent{path: path, op: OpUnlink})
			}
			// Chmod alone carries no content change

		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			b.logger.Warn("Filesystem watcher error", zap.Error(err))
		}
	}
}

func (b *notifyBackend) close() error {
	return b.fsw.Close()
}
