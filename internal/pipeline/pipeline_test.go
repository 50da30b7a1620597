package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oicur0t/watchlogs/internal/normalize"
	"github.com/oicur0t/watchlogs/internal/reader"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/internal/tracker"
	"github.com/oicur0t/watchlogs/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const line = `{"timestamp":"2024-01-01T10:00:00.000Z","level":"info","message":"hi"}`

func startStore(t *testing.T, logger *zap.Logger) *store.Store {
	t.Helper()
	st := store.New(logger, normalize.New(logger, time.UTC), store.Initial{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func fileState(t *testing.T, st *store.Store, path string) int64 {
	t.Helper()
	f, ok := st.Snapshot().File(path)
	require.True(t, ok, "file %s not in store", path)
	return f.ReadUntil
}

func TestEndToEndTail(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := startStore(t, logger)
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, "")

	w, err := watcher.New(watcher.Config{Settle: 50 * time.Millisecond}, logger)
	require.NoError(t, err)
	p := New(Config{}, st, w, reader.New(0), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = w.Run(ctx); done <- struct{}{} }()
	go func() { _ = p.Run(ctx); done <- struct{}{} }()
	defer func() {
		cancel()
		<-done
		<-done
	}()

	paths, err := p.Watch(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []string{path}, paths)

	appendFile(t, path, line+"\n")

	require.Eventually(t, func() bool {
		return len(st.Snapshot().Logs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	snap := st.Snapshot()
	log := snap.Logs[0]
	assert.Equal(t, "10:00:00.000", log.Clock)
	assert.Equal(t, "hi", log.Message)
	assert.Equal(t, path, log.File)
	assert.Equal(t, int64(len(line)+1), fileState(t, st, path))

	// Unlink drops the file and its logs
	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		snap := st.Snapshot()
		return len(snap.Files) == 0 && len(snap.Logs) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLoadAndSyncGrowth(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, line+"\n")

	p := New(Config{}, st, nil, reader.New(0), logger)
	loaded, err := p.Load(ctx, path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Len(t, st.Snapshot().Logs, 1)
	first := fileState(t, st, path)

	appendFile(t, path, `{"timestamp":"2024-01-01T11:00:00Z","message":"later"}`+"\n")
	require.NoError(t, p.Sync(ctx, path))

	logs := st.Snapshot().Logs
	require.Len(t, logs, 2)
	assert.Equal(t, "later", logs[0].Message)
	assert.Greater(t, fileState(t, st, path), first)

	// Nothing new: nothing changes
	rev := st.Snapshot().Revision
	require.NoError(t, p.Sync(ctx, path))
	assert.Equal(t, rev, st.Snapshot().Revision)
}

func TestMalformedLinesStillAdvance(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	content := "{broken\n" + line + "\n"
	writeFile(t, path, content)

	p := New(Config{}, st, nil, reader.New(0), logger)
	_, err := p.Load(ctx, path)
	require.NoError(t, err)

	assert.Len(t, st.Snapshot().Logs, 1)
	assert.Equal(t, int64(len(content)), fileState(t, st, path))
	assert.Equal(t, 1, observed.FilterMessage("Skipping malformed log line").Len())
}

func TestRangeTooLargeDoesNotAdvance(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, line+"\n")

	p := New(Config{}, st, nil, reader.New(10), logger)
	_, err := p.Load(ctx, path)
	require.NoError(t, err)

	assert.Zero(t, fileState(t, st, path))
	assert.Empty(t, st.Snapshot().Logs)
	assert.Equal(t, 1, observed.FilterMessage("New data exceeds read limit, skipping").Len())
}

func TestShrinkResetsAndRereads(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, line+"\n"+line+"\n")

	p := New(Config{OnShrink: tracker.ShrinkReset}, st, nil, reader.New(0), logger)
	_, err := p.Load(ctx, path)
	require.NoError(t, err)
	require.Len(t, st.Snapshot().Logs, 2)

	short := `{"message":"short"}` + "\n"
	writeFile(t, path, short)
	require.NoError(t, p.Sync(ctx, path))

	logs := st.Snapshot().Logs
	require.Len(t, logs, 1)
	assert.Equal(t, "short", logs[0].Message)
	assert.Equal(t, int64(len(short)), fileState(t, st, path))
}

func TestShrinkSkip(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, line+"\n"+line+"\n")

	p := New(Config{OnShrink: tracker.ShrinkSkip}, st, nil, reader.New(0), logger)
	_, err := p.Load(ctx, path)
	require.NoError(t, err)
	before := fileState(t, st, path)

	writeFile(t, path, "{}\n")
	require.NoError(t, p.Sync(ctx, path))

	assert.Len(t, st.Snapshot().Logs, 2)
	assert.Equal(t, before, fileState(t, st, path))
}

func TestClearTruncates(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, line+"\n")

	p := New(Config{}, st, nil, reader.New(0), logger)
	_, err := p.Load(ctx, path)
	require.NoError(t, err)

	require.NoError(t, p.Clear(ctx, path))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())
	assert.Empty(t, st.Snapshot().Logs)
	assert.Zero(t, fileState(t, st, path))

	appendFile(t, path, line+"\n")
	require.NoError(t, p.Sync(ctx, path))
	assert.Len(t, st.Snapshot().Logs, 1)
}

func TestClearLeavesUntrackedFileAlone(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, line+"\n")

	p := New(Config{}, st, nil, reader.New(0), logger)
	err := p.Clear(ctx, path)
	assert.ErrorIs(t, err, store.ErrUnknownFile)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(line)+1), fi.Size())
	assert.Empty(t, st.Snapshot().Files)
}

func TestChangeOfUnknownFileIsIgnored(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gone.log")

	p := New(Config{}, st, nil, reader.New(0), logger)
	p.handle(ctx, watcher.Event{Path: path, Op: watcher.OpChange})

	_, ok := st.Snapshot().File(path)
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("Ignoring change of a file that is not tracked").Len())

	// An add of the same path is accepted
	writeFile(t, path, "")
	p.handle(ctx, watcher.Event{Path: path, Op: watcher.OpAdd, ModTime: time.Now()})
	_, ok = st.Snapshot().File(path)
	assert.True(t, ok)
}

func TestUnwatchDropsFile(t *testing.T) {
	logger := zaptest.NewLogger(t)
	st := startStore(t, logger)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.log")
	writeFile(t, path, line+"\n")

	p := New(Config{}, st, nil, reader.New(0), logger)
	_, err := p.Load(ctx, path)
	require.NoError(t, err)

	require.NoError(t, p.Unwatch(ctx, path))
	assert.Empty(t, st.Snapshot().Files)
	assert.Empty(t, st.Snapshot().Logs)

	// A sync after unwatch is a no-op
	require.NoError(t, p.Sync(ctx, path))
	assert.Empty(t, st.Snapshot().Logs)
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "a.log"), "")
	writeFile(t, filepath.Join(dir, "sub", "b.log"), "")
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), "")

	got, err := Expand(filepath.Join(dir, "**", "*.log"), filepath.Join(dir, "a.log"), filepath.Join(dir, "missing.log"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.log"),
		filepath.Join(dir, "sub", "b.log"),
		filepath.Join(dir, "missing.log"),
	}, got)
}
