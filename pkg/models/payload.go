package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NodeKind is the JSON type of a payload node
type NodeKind string

const (
	KindObject NodeKind = "object"
	KindArray  NodeKind = "array"
	KindString NodeKind = "string"
	KindNumber NodeKind = "number"
	KindBool   NodeKind = "bool"
	KindNull   NodeKind = "null"
)

// Node wraps a parsed payload value. Display state (collapsed/expanded) is
// not stored here; it is keyed by Path in the store's UI table.
type Node struct {
	Kind     NodeKind `json:"kind"`
	Key      string   `json:"key,omitempty"`
	Path     string   `json:"path"`
	Value    any      `json:"value,omitempty"`
	Children []*Node  `json:"children,omitempty"`
}

// BuildTree converts a decoded JSON value into a payload tree. Object keys
// are sorted so paths are stable across renormalization.
func BuildTree(v any) *Node {
	return build(v, "", "")
}

func build(v any, key, path string) *Node {
	n := &Node{Key: key, Path: path}
	switch val := v.(type) {
	case map[string]any:
		n.Kind = KindObject
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.Children = append(n.Children, build(val[k], k, path+"/"+escapePointer(k)))
		}
	case []any:
		n.Kind = KindArray
		for i, item := range val {
			idx := strconv.Itoa(i)
			n.Children = append(n.Children, build(item, idx, path+"/"+idx))
		}
	case string:
		n.Kind = KindString
		n.Value = val
	case json.Number:
		n.Kind = KindNumber
		n.Value = val
	case float64, float32, int, int64, int32, uint64:
		n.Kind = KindNumber
		n.Value = val
	case bool:
		n.Kind = KindBool
		n.Value = val
	case nil:
		n.Kind = KindNull
	default:
		n.Kind = KindString
		n.Value = fmt.Sprint(val)
	}
	return n
}

// escapePointer follows RFC 6901 so keys containing "/" keep unique paths
func escapePointer(key string) string {
	key = strings.ReplaceAll(key, "~", "~0")
	return strings.ReplaceAll(key, "/", "~1")
}

// Annotated reports whether the node carries collapse state
func (n *Node) Annotated() bool {
	return n != nil && (n.Kind == KindObject || n.Kind == KindArray)
}

// Expandable reports whether there is anything to expand
func (n *Node) Expandable() bool {
	return n.Annotated() && len(n.Children) > 0
}

// Find returns the node at path, or nil
func (n *Node) Find(path string) *Node {
	if n == nil {
		return nil
	}
	if n.Path == path {
		return n
	}
	for _, c := range n.Children {
		if path == c.Path || strings.HasPrefix(path, c.Path+"/") {
			return c.Find(path)
		}
	}
	return nil
}

// Walk visits nodes depth first until fn returns false
func (n *Node) Walk(fn func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Interface converts the tree back into plain Go values
func (n *Node) Interface() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindObject:
		m := make(map[string]any, len(n.Children))
		for _, c := range n.Children {
			m[c.Key] = c.Interface()
		}
		return m
	case KindArray:
		s := make([]any, len(n.Children))
		for i, c := range n.Children {
			s[i] = c.Interface()
		}
		return s
	default:
		return n.Value
	}
}
