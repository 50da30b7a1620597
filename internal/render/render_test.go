package render

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/oicur0t/watchlogs/internal/normalize"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func newSnapshot(t *testing.T, line string, open bool, expand ...string) (*store.Snapshot, *models.Log) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.New(logger, normalize.New(logger, time.UTC), store.Initial{
		Loggers: []models.Logger{{Name: "app", Color: "#ff0000", BgColor: "#ffffff", BgOpacity: 0.2, Enabled: true}},
		Levels:  []models.Level{{Name: "info", Color: "#00ff00", Enabled: true}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	_, err := st.AddFile(ctx, "/var/log/svc/a.log", time.Now())
	require.NoError(t, err)
	var raw any
	require.NoError(t, json.Unmarshal([]byte(line), &raw))
	require.NoError(t, st.AddLogs(ctx, "/var/log/svc/a.log", []any{raw}))

	log := st.Snapshot().Logs[0]
	if open {
		_, err := st.ToggleOpened(ctx, log.ID)
		require.NoError(t, err)
	}
	for _, path := range expand {
		_, err := st.TogglePayload(ctx, log.ID, path)
		require.NoError(t, err)
	}
	return st.Snapshot(), log
}

const sample = `{"timestamp":"2024-01-01T10:00:00.000Z","level":"info","logger":"app.http","user":"bob","message":"hi","payload":{"req":{"path":"/x"},"n":3}}`

func TestTextRenderer(t *testing.T) {
	snap, log := newSnapshot(t, sample, false)
	var buf bytes.Buffer
	require.NoError(t, NewTextRenderer(&buf).Render(snap, log))

	assert.Equal(t, "10:00:00.000 svc/a.log app.http @bob hi\n", buf.String())
}

func TestTextRendererOpenedPayload(t *testing.T) {
	snap, log := newSnapshot(t, sample, true, "")
	var buf bytes.Buffer
	r := NewTextRenderer(&buf)
	r.FullClock = true
	require.NoError(t, r.Render(snap, log))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"2024-01-01 10:00:00.000 svc/a.log app.http @bob hi",
		"  {",
		"    n: 3",
		"    req: { 1 items }",
		"  }",
	}, lines)
}

func TestJSONRenderer(t *testing.T) {
	snap, log := newSnapshot(t, sample, false)
	var buf bytes.Buffer
	require.NoError(t, NewJSONRenderer(&buf).Render(snap, log))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "hi", got["message"])
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "app", got["logger"])
	assert.Equal(t, "2024-01-01T10:00:00.000Z", got["date"])
	assert.Equal(t, map[string]any{"path": "/x"}, got["payload"].(map[string]any)["req"])
}

func TestYAMLRenderer(t *testing.T) {
	snap, log := newSnapshot(t, sample, false)
	var buf bytes.Buffer
	require.NoError(t, NewYAMLRenderer(&buf).Render(snap, log))

	assert.True(t, strings.HasPrefix(buf.String(), "---\n"))
	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "hi", got["message"])
	assert.Equal(t, "10:00:00.000", got["clock"])
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New("xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBlend(t *testing.T) {
	c, ok := blend("#ff8000", 0.5)
	require.True(t, ok)
	assert.Equal(t, "#804000", c)

	c, ok = blend("#fff", 1)
	require.True(t, ok)
	assert.Equal(t, "#ffffff", c)

	_, ok = blend("#00000", 1)
	assert.False(t, ok)
}
