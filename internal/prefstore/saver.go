package prefstore

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/pkg/models"
	"go.uber.org/zap"
)

// Saver writes preferences back whenever a published snapshot changes them
type Saver struct {
	kv     KV
	logger *zap.Logger
	last   map[string][]byte
}

// NewSaver creates a saver
func NewSaver(kv KV, logger *zap.Logger) *Saver {
	return &Saver{kv: kv, logger: logger, last: make(map[string][]byte)}
}

// Blobs encodes the persisted parts of a snapshot. Read cursors and
// modification times are left out of files; they are rebuilt on restore.
func Blobs(snap *store.Snapshot) (map[string][]byte, error) {
	files := make([]models.File, len(snap.Files))
	for i, f := range snap.Files {
		f.ReadUntil = 0
		f.LastModified = time.Time{}
		files[i] = f
	}
	values := map[string]any{
		KeyFiles:    files,
		KeyFilters:  snap.Filters,
		KeyLoggers:  snap.Loggers,
		KeyLevels:   snap.Levels,
		KeySettings: snap.Settings,
	}
	out := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[key] = data
	}
	return out, nil
}

// Prime records the current values as already saved
func (s *Saver) Prime(snap *store.Snapshot) {
	blobs, err := Blobs(snap)
	if err != nil {
		return
	}
	for k, v := range blobs {
		s.last[k] = v
	}
}

// Save writes the keys whose encoding differs from the last save
func (s *Saver) Save(ctx context.Context, snap *store.Snapshot) error {
	blobs, err := Blobs(snap)
	if err != nil {
		return err
	}
	for _, key := range Keys {
		data := blobs[key]
		if bytes.Equal(s.last[key], data) {
			continue
		}
		if err := s.kv.Save(ctx, key, data); err != nil {
			return err
		}
		s.last[key] = data
		s.logger.Debug("Preference saved", zap.String("key", key), zap.Uint64("revision", snap.Revision))
	}
	return nil
}

// Run saves on every snapshot until the subscription closes or ctx is done
func (s *Saver) Run(ctx context.Context, snapshots <-chan *store.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if err := s.Save(ctx, snap); err != nil {
				s.logger.Error("Failed to save preferences", zap.Error(err))
			}
		}
	}
}
