package prefstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oicur0t/watchlogs/internal/normalize"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   map[string]int
	deletes []string
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, saves: map[string]int{}}
}

func (m *memKV) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memKV) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.saves[key]++
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deletes = append(m.deletes, key)
	return nil
}

func (m *memKV) Close(context.Context) error { return nil }

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prefs")
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Load(ctx, KeyFiles)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Save(ctx, KeyFiles, []byte(`[]`)))
	require.NoError(t, fs.Save(ctx, KeyFiles, []byte(`[{"path":"/a"}]`)))
	got, err := fs.Load(ctx, KeyFiles)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"path":"/a"}]`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "files.json", entries[0].Name())

	require.NoError(t, fs.Delete(ctx, KeyFiles))
	require.NoError(t, fs.Delete(ctx, KeyFiles))
	_, err = fs.Load(ctx, KeyFiles)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, fs.Save(ctx, "../escape", []byte(`{}`)))
}

func TestRestoreDefaults(t *testing.T) {
	initial, err := Restore(context.Background(), newMemKV(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Empty(t, initial.Files)
	assert.Empty(t, initial.Loggers)
	assert.Empty(t, initial.Levels)
	assert.Equal(t, models.DefaultFilters(), initial.Filters)
	assert.Equal(t, models.Settings{}, initial.Settings)
}

func TestRestoreMergesOverDefaults(t *testing.T) {
	kv := newMemKV()
	kv.data[KeyFilters] = []byte(`{"message":"disk"}`)
	kv.data[KeyFiles] = []byte(`[{"path":"/var/log/app/a.log","enabled":true,"readUntil":999}]`)
	kv.data[KeySettings] = []byte(`{"payloadParse":true,"levelKey":"severity"}`)

	initial, err := Restore(context.Background(), kv, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "disk", initial.Filters.Message)
	assert.Equal(t, models.DurationEver, initial.Filters.Duration)
	require.Len(t, initial.Files, 1)
	assert.Zero(t, initial.Files[0].ReadUntil)
	assert.Equal(t, "app/a.log", initial.Files[0].Name)
	assert.True(t, initial.Settings.PayloadParse)
	assert.Equal(t, "severity", initial.Settings.LevelKey)
}

func TestRestoreDropsCorruptBlob(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	kv := newMemKV()
	kv.data[KeyLoggers] = []byte(`{not json`)
	kv.data[KeyLevels] = []byte(`{"name":"wrong shape"}`)

	initial, err := Restore(context.Background(), kv, zap.New(core))
	require.NoError(t, err)

	assert.Empty(t, initial.Loggers)
	assert.Empty(t, initial.Levels)
	assert.ElementsMatch(t, []string{KeyLoggers, KeyLevels}, kv.deletes)
	assert.Equal(t, 2, logs.FilterMessage("Discarding corrupt preference").Len())
}

func TestSaverWritesOnlyChangedKeys(t *testing.T) {
	logger := zaptest.NewLogger(t)
	kv := newMemKV()
	st := store.New(logger, normalize.New(logger, time.UTC), store.Initial{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		_ = st.Run(ctx)
	}()

	saver := NewSaver(kv, logger)
	saver.Prime(st.Snapshot())

	snaps, unsubscribe := st.Subscribe()
	saverDone := make(chan struct{})
	go func() {
		defer close(saverDone)
		_ = saver.Run(ctx, snaps)
	}()

	_, err := st.AddFile(ctx, "/tmp/a.log", time.Now())
	require.NoError(t, err)
	require.NoError(t, st.AddLogger(ctx, models.Logger{Name: "app", Enabled: true}))
	require.NoError(t, st.AddLogs(ctx, "/tmp/a.log", []any{map[string]any{"message": "x"}}))

	require.Eventually(t, func() bool {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		return kv.saves[KeyFiles] == 1 && kv.saves[KeyLoggers] == 1
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	<-saverDone
	cancel()
	<-storeDone

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Zero(t, kv.saves[KeySettings])
	assert.Zero(t, kv.saves[KeyFilters])
	assert.Zero(t, kv.saves[KeyLevels])
	assert.Equal(t, 1, kv.saves[KeyFiles])
}

func TestSanitizeCollectionName(t *testing.T) {
	assert.Equal(t, "prefs_work_laptop", sanitizeCollectionName("prefs_", "Work-Laptop"))
	assert.Equal(t, "prefs_default", sanitizeCollectionName("prefs_", ""))
}
