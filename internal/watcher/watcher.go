package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSettle is how long a file must stay quiet before it is read
const DefaultSettle = 500 * time.Millisecond

// Config selects the backend and the settle window
type Config struct {
	Settle       time.Duration
	Poll         bool
	PollInterval time.Duration
}

type pending struct {
	op   Op
	last time.Time
}

// Watcher debounces backend events per path. Add and Change are held until
// the path has been quiet for the settle window; Unlink is delivered at once
// and drops anything pending for the path.
type Watcher struct {
	logger  *zap.Logger
	backend backend
	settle  time.Duration
	tick    time.Duration
	now     func() time.Time

	events chan Event
	wake   chan struct{}

	mu      sync.Mutex
	tracked map[string]bool
	pending map[string]*pending
	ready   []Event
}

// New creates a watcher with the configured backend
func New(cfg Config, logger *zap.Logger) (*Watcher, error) {
	var b backend
	if cfg.Poll {
		b = newPollBackend(logger, cfg.PollInterval)
	} else {
		nb, err := newNotifyBackend(logger)
		if err != nil {
			return nil, err
		}
		b = nb
	}
	return newWatcher(b, cfg.Settle, logger), nil
}

func newWatcher(b backend, settle time.Duration, logger *zap.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	tick := settle / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	if tick > 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	return &Watcher{
		logger:  logger,
		backend: b,
		settle:  settle,
		tick:    tick,
		now:     time.Now,
		events:  make(chan Event, 64),
		wake:    make(chan struct{}, 1),
		tracked: make(map[string]bool),
		pending: make(map[string]*pending),
	}
}

// Events returns the debounced event stream. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Add starts watching path. When the file already exists an OpAdd is queued
// for it.
func (w *Watcher) Add(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w.mu.Lock()
	already := w.tracked[path]
	w.tracked[path] = true
	w.mu.Unlock()
	if already {
		return nil
	}

	if err := w.backend.watch(path); err != nil {
		w.mu.Lock()
		delete(w.tracked, path)
		w.mu.Unlock()
		return err
	}

	if _, err := os.Stat(path); err == nil {
		w.enqueue(rawEvent{path: path, op: OpAdd})
	}
	w.logger.Debug("Watching file", zap.String("file", path))
	return nil
}

// Remove stops watching path and forgets pending events for it
func (w *Watcher) Remove(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w.mu.Lock()
	delete(w.tracked, path)
	delete(w.pending, path)
	w.mu.Unlock()

	return w.backend.unwatch(path)
}

// Watched returns the number of tracked paths
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Run delivers events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	stop := make(chan struct{})
	backendDone := make(chan struct{})
	go func() {
		defer close(backendDone)
		w.backend.run(stop, w.enqueue)
	}()
	defer func() {
		close(stop)
		<-backendDone
		if err := w.backend.close(); err != nil {
			w.logger.Warn("Failed to close watcher backend", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.settleDue()
		case <-w.wake:
		}

		for _, ev := range w.takeReady() {
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) enqueue(ev rawEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.tracked[ev.path] {
		return
	}

	if ev.op == OpUnlink {
		delete(w.pending, ev.path)
		w.ready = append(w.ready, Event{Path: ev.path, Op: OpUnlink})
		select {
		case w.wake <- struct{}{}:
		default:
		}
		return
	}

	p, ok := w.pending[ev.path]
	if !ok {
		w.pending[ev.path] = &pending{op: ev.op, last: w.now()}
		return
	}
	// An add that has not been delivered yet absorbs later changes
	if ev.op == OpAdd {
		p.op = OpAdd
	}
	p.last = w.now()
}

// settleDue moves quiet paths to the ready list, stat'ing each one
func (w *Watcher) settleDue() {
	now := w.now()

	w.mu.Lock()
	var due []string
	ops := make(map[string]Op)
	for path, p := range w.pending {
		if now.Sub(p.last) >= w.settle {
			due = append(due, path)
			ops[path] = p.op
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range due {
		ev := Event{Path: path, Op: ops[path]}
		fi, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			ev = Event{Path: path, Op: OpUnlink}
		case err != nil:
			w.logger.Warn("Failed to stat file", zap.String("file", path), zap.Error(err))
			continue
		default:
			ev.Size = fi.Size()
			ev.ModTime = fi.ModTime()
		}

		w.mu.Lock()
		if w.tracked[path] {
			w.ready = append(w.ready, ev)
		}
		w.mu.Unlock()
	}
}

func (w *Watcher) takeReady() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.ready
	w.ready = nil
	return out
}
