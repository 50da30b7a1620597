// Package prefstore persists user preferences as JSON blobs under fixed keys.
package prefstore

import (
	"context"
	"errors"
)

// Preference keys
const (
	KeyFiles    = "files"
	KeyFilters  = "filters"
	KeyLoggers  = "loggers"
	KeyLevels   = "levels"
	KeySettings = "settings"
)

// Keys lists every persisted key
var Keys = []string{KeyFiles, KeyFilters, KeyLoggers, KeyLevels, KeySettings}

// ErrNotFound is returned by Load when nothing is stored under a key
var ErrNotFound = errors.New("preference not found")

// KV is a flat key-value blob store
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
