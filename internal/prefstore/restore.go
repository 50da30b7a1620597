package prefstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/pkg/models"
	"go.uber.org/zap"
)

// Restore loads every key over its default. A blob that cannot be decoded
// is deleted and the default kept. Files come back with readUntil 0 since
// logs are not persisted.
func Restore(ctx context.Context, kv KV, logger *zap.Logger) (store.Initial, error) {
	initial := store.Initial{
		Files:   []models.File{},
		Loggers: []models.Logger{},
		Levels:  []models.Level{},
		Filters: models.DefaultFilters(),
	}

	targets := map[string]any{
		KeyFiles:    &initial.Files,
		KeyFilters:  &initial.Filters,
		KeyLoggers:  &initial.Loggers,
		KeyLevels:   &initial.Levels,
		KeySettings: &initial.Settings,
	}

	for _, key := range Keys {
		if err := restoreKey(ctx, kv, key, targets[key], logger); err != nil {
			return store.Initial{}, err
		}
	}

	for i := range initial.Files {
		initial.Files[i].ReadUntil = 0
		initial.Files[i].Name = models.DisplayName(initial.Files[i].Path)
	}
	return initial, nil
}

func restoreKey(ctx context.Context, kv KV, key string, target any, logger *zap.Logger) error {
	data, err := kv.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}

	// Decode into a scratch copy so a half-decoded blob cannot leak in
	scratch, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to encode default %s: %w", key, err)
	}
	if err := decodeOver(data, target); err != nil {
		logger.Warn("Discarding corrupt preference", zap.String("key", key), zap.Error(err))
		if err := json.Unmarshal(scratch, target); err != nil {
			return fmt.Errorf("failed to reset %s: %w", key, err)
		}
		if err := kv.Delete(ctx, key); err != nil {
			logger.Warn("Failed to delete corrupt preference", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

func decodeOver(data []byte, target any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("empty preference")
	}
	return json.Unmarshal(data, target)
}
