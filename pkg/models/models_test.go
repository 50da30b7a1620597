package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestBuildTreePaths(t *testing.T) {
	root := BuildTree(decode(t, `{"b":[1,{"c":null}],"a/x":"s"}`))

	var paths []string
	root.Walk(func(n *Node) bool {
		paths = append(paths, n.Path)
		return true
	})
	want := []string{"", "/a~1x", "/b", "/b/0", "/b/1", "/b/1/c"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, KindNull, root.Find("/b/1/c").Kind)
	assert.Equal(t, "1", root.Find("/b/1").Key)
	assert.Nil(t, root.Find("/missing"))
	assert.Nil(t, (*Node)(nil).Find(""))
}

func TestNodeExpandable(t *testing.T) {
	root := BuildTree(decode(t, `{"empty":{},"list":[],"full":{"k":1},"s":"x"}`))

	assert.True(t, root.Expandable())
	assert.True(t, root.Find("/empty").Annotated())
	assert.False(t, root.Find("/empty").Expandable())
	assert.False(t, root.Find("/list").Expandable())
	assert.True(t, root.Find("/full").Expandable())
	assert.False(t, root.Find("/s").Annotated())
}

func TestNodeInterfaceRoundTrip(t *testing.T) {
	in := decode(t, `{"a":[true,"x",null],"b":{"c":2}}`)
	if diff := cmp.Diff(in, BuildTree(in).Interface()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "app/a.log", DisplayName("/var/log/app/a.log"))
	assert.Equal(t, "/a.log", DisplayName("/a.log"))
	assert.Equal(t, "a.log", DisplayName("a.log"))
}

func TestFindDuration(t *testing.T) {
	assert.Equal(t, DurationLastQuarter, FindDuration(DurationLastQuarter).Key)
	assert.Equal(t, DurationEver, FindDuration("nope").Key)
	assert.Zero(t, FindDuration(DurationEver).Duration)
}

func TestNewFile(t *testing.T) {
	f := NewFile("/srv/app/out.log", time.Time{})
	assert.True(t, f.Enabled)
	assert.Equal(t, "app/out.log", f.Name)
	assert.Equal(t, DefaultFileColor, f.Color)
	assert.Zero(t, f.ReadUntil)
}
