package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oicur0t/watchlogs/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.Watcher.Settle)
	assert.Equal(t, int64(1<<30), cfg.Reader.MaxRange)
	assert.Equal(t, 4, cfg.Reader.MaxConcurrent)
	assert.Equal(t, tracker.ShrinkReset, cfg.ShrinkPolicy())
	assert.Equal(t, "file", cfg.Prefs.Backend)
	assert.NotEmpty(t, cfg.Prefs.Dir)
	assert.Equal(t, 10*time.Second, cfg.Prefs.MongoDB.Timeout)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
timezone: UTC
files:
  - /var/log/app/*.log
watcher:
  settle: 1s
  poll: true
reader:
  max_range: 1024
  on_shrink: skip
prefs:
  backend: mongo
  mongodb:
    uri: mongodb://localhost:27017
    profile: laptop
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"/var/log/app/*.log"}, cfg.Files)
	assert.Equal(t, time.Second, cfg.Watcher.Settle)
	assert.True(t, cfg.Watcher.Poll)
	assert.Equal(t, int64(1024), cfg.Reader.MaxRange)
	assert.Equal(t, tracker.ShrinkSkip, cfg.ShrinkPolicy())
	assert.Equal(t, "mongodb://localhost:27017", cfg.Prefs.MongoDB.URI)
	assert.Equal(t, "laptop", cfg.Prefs.MongoDB.Profile)
	assert.Equal(t, "prefs_", cfg.Prefs.MongoDB.CollectionPrefix)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	t.Setenv("WATCHLOGS_LOG_LEVEL", "error")
	t.Setenv("WATCHLOGS_READER_ON_SHRINK", "skip")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, tracker.ShrinkSkip, cfg.ShrinkPolicy())
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"bad shrink":      "reader:\n  on_shrink: explode\n",
		"bad backend":     "prefs:\n  backend: s3\n",
		"mongo needs uri": "prefs:\n  backend: mongo\n",
		"bad timezone":    "timezone: Mars/Olympus\n",
		"bad concurrency": "reader:\n  max_concurrent: 0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
