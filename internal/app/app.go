// Package app wires configuration, preferences, the store and the pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oicur0t/watchlogs/internal/config"
	"github.com/oicur0t/watchlogs/internal/normalize"
	"github.com/oicur0t/watchlogs/internal/pipeline"
	"github.com/oicur0t/watchlogs/internal/prefstore"
	"github.com/oicur0t/watchlogs/internal/reader"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/internal/watcher"
	"github.com/oicur0t/watchlogs/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App holds the long-lived components
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	prefs  prefstore.KV
	store  *store.Store
	reader *reader.Reader
}

// New opens the preference backend and restores the store from it
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	prefs, err := openPrefs(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	initial := store.Initial{Filters: models.DefaultFilters()}
	if prefs != nil {
		initial, err = prefstore.Restore(ctx, prefs, logger)
		if err != nil {
			_ = prefs.Close(ctx)
			return nil, fmt.Errorf("failed to restore preferences: %w", err)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		prefs:  prefs,
		store:  store.New(logger, normalize.New(logger, loc), initial),
		reader: reader.New(cfg.Reader.MaxRange),
	}, nil
}

func openPrefs(ctx context.Context, cfg *config.Config, logger *zap.Logger) (prefstore.KV, error) {
	switch cfg.Prefs.Backend {
	case "mongo":
		return prefstore.NewMongoStore(ctx, cfg.Prefs.MongoDB, logger)
	case "none":
		return nil, nil
	default:
		return prefstore.NewFileStore(cfg.Prefs.Dir)
	}
}

// Store exposes the store to commands
func (a *App) Store() *store.Store {
	return a.store
}

// Close releases the preference backend
func (a *App) Close(ctx context.Context) error {
	if a.prefs == nil {
		return nil
	}
	return a.prefs.Close(ctx)
}

// Run starts the store and the preference saver, calls fn, then saves the
// final state and stops everything
func (a *App) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return a.store.Run(gctx)
	})

	var saver *prefstore.Saver
	if a.prefs != nil {
		saver = prefstore.NewSaver(a.prefs, a.logger)
		saver.Prime(a.store.Snapshot())
		snaps, unsubscribe := a.store.Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			return saver.Run(gctx, snaps)
		})
	}

	fnErr := fn(gctx)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Background task failed", zap.Error(err))
	}

	if saver != nil {
		saveCtx, cancelSave := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelSave()
		if err := saver.Save(saveCtx, a.store.Snapshot()); err != nil {
			a.logger.Error("Failed to save preferences", zap.Error(err))
		}
	}
	return fnErr
}

// newPipeline builds a pipeline; w may be nil for one-shot loads
func (a *App) newPipeline(w pipeline.Watcher) *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		OnShrink:      a.cfg.ShrinkPolicy(),
		MaxConcurrent: a.cfg.Reader.MaxConcurrent,
	}, a.store, w, a.reader, a.logger)
}

// newWatcher builds the configured watcher
func (a *App) newWatcher() (*watcher.Watcher, error) {
	return watcher.New(watcher.Config{
		Settle:       a.cfg.Watcher.Settle,
		Poll:         a.cfg.Watcher.Poll,
		PollInterval: a.cfg.Watcher.PollInterval,
	}, a.logger)
}
