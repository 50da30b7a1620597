package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/oicur0t/watchlogs/internal/pipeline"
	"github.com/oicur0t/watchlogs/internal/render"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/pkg/models"
	"go.uber.org/zap"
)

// View selects how much of each log's payload gets rendered
type View struct {
	// Open shows the payload of every printed log
	Open bool
	// Expand also unfolds every payload node; implies Open
	Expand bool
}

// Tail follows the saved files plus patterns and renders every newly
// visible log, oldest first, until ctx is done
func (a *App) Tail(ctx context.Context, patterns []string, view View, out render.Renderer) error {
	w, err := a.newWatcher()
	if err != nil {
		return err
	}
	p := a.newPipeline(w)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, 2)
	go func() { errs <- w.Run(runCtx) }()
	go func() { errs <- p.Run(runCtx) }()
	defer func() {
		cancel()
		<-errs
		<-errs
	}()

	if _, err := p.Watch(runCtx, a.withSaved(patterns)...); err != nil {
		return err
	}
	if w.Watched() == 0 {
		return errors.New("no files to watch")
	}
	a.logger.Info("Tailing files", zap.Int("files", w.Watched()))

	snaps, unsubscribe := a.store.Subscribe()
	defer unsubscribe()

	seen := make(map[uuid.UUID]bool)
	for {
		select {
		case <-runCtx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := a.renderNew(runCtx, snap, seen, view, out); err != nil {
				return err
			}
		}
	}
}

// renderNew prints visible logs not printed before, opening them first when
// the view asks for it
func (a *App) renderNew(ctx context.Context, snap *store.Snapshot, seen map[uuid.UUID]bool, view View, out render.Renderer) error {
	visible := snap.Visible(time.Now())
	var fresh []*models.Log
	for _, log := range visible {
		if !seen[log.ID] {
			seen[log.ID] = true
			fresh = append(fresh, log)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	slices.Reverse(fresh)

	if view.Open || view.Expand {
		ids := make([]uuid.UUID, len(fresh))
		for i, log := range fresh {
			ids[i] = log.ID
		}
		err := a.store.OpenLogs(ctx, ids, view.Expand)
		switch {
		case err == nil:
			snap = a.store.Snapshot()
		case !errors.Is(err, store.ErrUnknownLog):
			return err
		}
	}
	for _, log := range fresh {
		if err := out.Render(snap, log); err != nil {
			return fmt.Errorf("failed to render log: %w", err)
		}
	}
	return nil
}

// Dump reads patterns once and renders the visible logs oldest first.
// Without patterns the saved files are read.
func (a *App) Dump(ctx context.Context, patterns []string, view View, out render.Renderer) error {
	if len(patterns) == 0 {
		patterns = a.withSaved(nil)
	}
	if _, err := a.newPipeline(nil).Load(ctx, patterns...); err != nil {
		return err
	}
	return a.renderNew(ctx, a.store.Snapshot(), make(map[uuid.UUID]bool), view, out)
}

// Clear truncates a saved file on disk and drops its logs. Paths outside the
// saved watch set are reported and left alone.
func (a *App) Clear(ctx context.Context, path string) error {
	err := a.newPipeline(nil).Clear(ctx, path)
	if errors.Is(err, store.ErrUnknownFile) {
		a.logger.Warn("Refusing to clear a file that is not watched", zap.String("file", path))
	}
	return err
}

// AddFiles adds matching existing files to the saved watch set
func (a *App) AddFiles(ctx context.Context, patterns []string) ([]string, error) {
	paths, err := pipeline.Expand(patterns...)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, path := range paths {
		fi, err := os.Stat(path)
		if err != nil {
			return added, fmt.Errorf("failed to add %s: %w", path, err)
		}
		if _, err := a.store.AddFile(ctx, path, fi.ModTime()); err != nil && !errors.Is(err, store.ErrExists) {
			return added, err
		}
		added = append(added, path)
	}
	return added, nil
}

// RemoveFile drops path from the saved watch set
func (a *App) RemoveFile(ctx context.Context, path string) error {
	return a.newPipeline(nil).Unwatch(ctx, path)
}

// withSaved prepends the saved files and the configured files to patterns
func (a *App) withSaved(patterns []string) []string {
	var out []string
	for _, f := range a.store.Snapshot().Files {
		out = append(out, f.Path)
	}
	out = append(out, a.cfg.Files...)
	return append(out, patterns...)
}
