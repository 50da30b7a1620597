// Package pipeline turns watcher events into store mutations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oicur0t/watchlogs/internal/parser"
	"github.com/oicur0t/watchlogs/internal/reader"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/internal/tracker"
	"github.com/oicur0t/watchlogs/internal/watcher"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent bounds reads running at the same time across files
const DefaultMaxConcurrent = 4

// Watcher is the event source the pipeline consumes
type Watcher interface {
	Add(path string) error
	Remove(path string) error
	Events() <-chan watcher.Event
}

// Config tunes the pipeline
type Config struct {
	OnShrink      tracker.ShrinkPolicy
	MaxConcurrent int
}

// Pipeline owns one worker per watched path. A worker serializes the reads
// of its path; reads of different paths run concurrently.
type Pipeline struct {
	logger  *zap.Logger
	store   *store.Store
	watcher Watcher
	reader  *reader.Reader
	parser  *parser.LogParser
	policy  tracker.ShrinkPolicy
	sem     *semaphore.Weighted

	mu      sync.Mutex
	workers map[string]*worker
	group   *errgroup.Group
	runCtx  context.Context
}

type worker struct {
	path    string
	tracker *tracker.Tracker
	kick    chan struct{}
	cancel  context.CancelFunc

	// held for the duration of one sync
	mu sync.Mutex
}

// New creates a pipeline. watcher may be nil for one-shot loading.
func New(cfg Config, st *store.Store, w Watcher, r *reader.Reader, logger *zap.Logger) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.OnShrink == "" {
		cfg.OnShrink = tracker.ShrinkReset
	}
	return &Pipeline{
		logger:  logger,
		store:   st,
		watcher: w,
		reader:  r,
		parser:  parser.NewLogParser(logger),
		policy:  cfg.OnShrink,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		workers: make(map[string]*worker),
	}
}

// Run consumes watcher events until ctx is done or the event stream closes
func (p *Pipeline) Run(ctx context.Context) error {
	if p.watcher == nil {
		return errors.New("pipeline has no watcher")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	p.mu.Lock()
	p.group = g
	p.runCtx = gctx
	for _, w := range p.workers {
		p.spawnLocked(w)
	}
	p.mu.Unlock()

	g.Go(func() error {
		events := p.watcher.Events()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-events:
				if !ok {
					// Watcher stopped; let the workers wind down
					cancel()
					return nil
				}
				p.handle(gctx, ev)
			}
		}
	})

	err := g.Wait()

	p.mu.Lock()
	p.group = nil
	p.runCtx = nil
	p.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

func (p *Pipeline) handle(ctx context.Context, ev watcher.Event) {
	p.logger.Debug("File event",
		zap.String("file", ev.Path),
		zap.Stringer("op", ev.Op),
		zap.Int64("size", ev.Size))

	switch ev.Op {
	case watcher.OpAdd:
		if _, ok := p.store.Snapshot().File(ev.Path); !ok {
			if _, err := p.store.AddFile(ctx, ev.Path, ev.ModTime); err != nil && !errors.Is(err, store.ErrExists) {
				p.logger.Warn("Failed to add file", zap.String("file", ev.Path), zap.Error(err))
				return
			}
		}
		p.ensureWorker(ev.Path).trigger()

	case watcher.OpChange:
		// Only an add brings a file into the store; a late change may
		// belong to a file that was already unlinked
		if _, ok := p.store.Snapshot().File(ev.Path); !ok {
			p.logger.Warn("Ignoring change of a file that is not tracked", zap.String("file", ev.Path))
			return
		}
		p.ensureWorker(ev.Path).trigger()

	case watcher.OpUnlink:
		if err := p.Unwatch(ctx, ev.Path); err != nil {
			p.logger.Warn("Failed to unwatch file", zap.String("file", ev.Path), zap.Error(err))
		}
	}
}

// Watch expands glob patterns and starts following every match. Plain
// paths are followed even when the file does not exist yet.
func (p *Pipeline) Watch(ctx context.Context, patterns ...string) ([]string, error) {
	if p.watcher == nil {
		return nil, errors.New("pipeline has no watcher")
	}
	paths, err := Expand(patterns...)
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		if err := p.watcher.Add(path); err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
		if fi, err := os.Stat(path); err == nil {
			if _, err := p.store.AddFile(ctx, path, fi.ModTime()); err != nil && !errors.Is(err, store.ErrExists) {
				return nil, err
			}
			p.ensureWorker(path).trigger()
		}
		p.logger.Info("Watching file", zap.String("file", path))
	}
	return paths, nil
}

// Unwatch stops following path and drops the file and its logs. A read in
// flight for path is discarded when it completes.
func (p *Pipeline) Unwatch(ctx context.Context, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if p.watcher != nil {
		if err := p.watcher.Remove(path); err != nil {
			p.logger.Warn("Failed to release watch", zap.String("file", path), zap.Error(err))
		}
	}

	p.mu.Lock()
	w, ok := p.workers[path]
	delete(p.workers, path)
	p.mu.Unlock()
	if ok {
		w.tracker.Remove()
		if w.cancel != nil {
			w.cancel()
		}
	}

	if err := p.store.RemoveFile(ctx, path); err != nil && !errors.Is(err, store.ErrUnknownFile) {
		return err
	}
	p.logger.Info("Stopped watching file", zap.String("file", path))
	return nil
}

// Clear truncates a tracked file on disk, resets its cursor and drops its
// logs. Untracked paths are left untouched and yield store.ErrUnknownFile.
func (p *Pipeline) Clear(ctx context.Context, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, ok := p.store.Snapshot().File(path); !ok {
		return fmt.Errorf("clear %s: %w", path, store.ErrUnknownFile)
	}
	if err := os.Truncate(path, 0); err != nil {
		return &reader.IOError{Path: path, Op: "truncate", Err: err}
	}

	modTime := time.Time{}
	if fi, err := os.Stat(path); err == nil {
		modTime = fi.ModTime()
	}
	if _, err := p.store.ClearFile(ctx, path, modTime); err != nil {
		return err
	}

	w := p.ensureWorker(path)
	w.tracker.Clear()
	w.trigger()
	return nil
}

// Load reads every matching file once without watching it
func (p *Pipeline) Load(ctx context.Context, patterns ...string) ([]string, error) {
	paths, err := Expand(patterns...)
	if err != nil {
		return nil, err
	}

	var loaded []string
	for _, path := range paths {
		fi, err := os.Stat(path)
		if err != nil {
			p.logger.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			continue
		}
		if _, err := p.store.AddFile(ctx, path, fi.ModTime()); err != nil && !errors.Is(err, store.ErrExists) {
			return nil, err
		}
		if err := p.Sync(ctx, path); err != nil {
			return nil, err
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Expand resolves glob patterns to absolute file paths, keeping plain paths
// as they are. Duplicates are dropped.
func Expand(patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
		return nil
	}

	for _, pattern := range patterns {
		pattern = expandHome(pattern)
		if !hasMeta(pattern) {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", pattern, err)
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
