package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/oicur0t/watchlogs/internal/reader"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/internal/tracker"
	"go.uber.org/zap"
)

func (p *Pipeline) ensureWorker(path string) *worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.workers[path]; ok {
		return w
	}
	w := &worker{
		path:    path,
		tracker: tracker.New(path),
		kick:    make(chan struct{}, 1),
	}
	p.workers[path] = w
	if p.group != nil {
		p.spawnLocked(w)
	}
	return w
}

// spawnLocked starts the worker goroutine; p.mu must be held
func (p *Pipeline) spawnLocked(w *worker) {
	ctx, cancel := context.WithCancel(p.runCtx)
	w.cancel = cancel
	p.group.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-w.kick:
				if err := p.syncWorker(ctx, w); err != nil && ctx.Err() == nil {
					p.logger.Warn("Failed to sync file", zap.String("file", w.path), zap.Error(err))
				}
			}
		}
	})
}

// trigger schedules a sync; kicks arriving while one is pending collapse
func (w *worker) trigger() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Sync reads whatever is new in path and commits it to the store
func (p *Pipeline) Sync(ctx context.Context, path string) error {
	return p.syncWorker(ctx, p.ensureWorker(path))
}

func (p *Pipeline) syncWorker(ctx context.Context, w *worker) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	log := p.logger.With(zap.String("file", w.path))

	f, ok := p.store.Snapshot().File(w.path)
	if !ok {
		return nil
	}
	fi, err := os.Stat(w.path)
	if err != nil {
		log.Warn("Failed to stat file", zap.Error(&reader.IOError{Path: w.path, Op: "stat", Err: err}))
		return nil
	}

	rng, err := w.tracker.Plan(fi.Size(), f.ReadUntil)
	var shrink *reader.ShrinkError
	switch {
	case errors.Is(err, tracker.ErrRemoved):
		return nil
	case errors.As(err, &shrink):
		if p.policy == tracker.ShrinkSkip {
			log.Warn("File shrank, skipping", zap.Int64("read_until", shrink.From), zap.Int64("size", shrink.To))
			return nil
		}
		log.Warn("File shrank, reading again from the start", zap.Int64("read_until", shrink.From), zap.Int64("size", shrink.To))
		cleared, err := p.store.ClearFile(ctx, w.path, fi.ModTime())
		if err != nil {
			return err
		}
		w.tracker.Clear()
		f = cleared
		rng = tracker.Range{From: 0, To: fi.Size()}
	case err != nil:
		return err
	}

	if rng.Empty() && fi.ModTime().Equal(f.LastModified) {
		return nil
	}

	var data []byte
	if !rng.Empty() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		data, err = p.reader.Read(w.path, rng.From, rng.To)
		p.sem.Release(1)

		var tooLarge *reader.RangeTooLargeError
		switch {
		case errors.As(err, &tooLarge):
			log.Warn("New data exceeds read limit, skipping", zap.Int64("size", tooLarge.Size), zap.Int64("limit", tooLarge.Limit))
			return nil
		case err != nil:
			log.Warn("Failed to read file", zap.Error(err))
			return nil
		}
	}

	records, skipped := p.parser.ParseBatch(w.path, data)
	err = p.store.CommitRead(ctx, store.Commit{
		Path:    w.path,
		Epoch:   f.Epoch,
		From:    rng.From,
		To:      rng.To,
		ModTime: fi.ModTime(),
		Records: records,
	})
	switch {
	case errors.Is(err, store.ErrStale):
		return nil
	case err != nil:
		return err
	}

	w.tracker.Advance()
	log.Debug("Read file",
		zap.Int64("from", rng.From),
		zap.Int64("to", rng.To),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped))
	return nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{`)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
