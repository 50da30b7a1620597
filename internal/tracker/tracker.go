// Package tracker decides which bytes of a watched file are new.
package tracker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/oicur0t/watchlogs/internal/reader"
)

// State of a tracked file
type State int

const (
	// Discovered means the file was stat'ed but not fully read yet
	Discovered State = iota
	// Tracking means readUntil is caught up with the last read
	Tracking
	// Removed is terminal
	Removed
)

func (s State) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Tracking:
		return "tracking"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrRemoved is returned when planning a read for a removed file
var ErrRemoved = errors.New("file is no longer tracked")

// ShrinkPolicy decides what happens when a file gets smaller outside of a clear
type ShrinkPolicy string

const (
	// ShrinkReset purges the file's logs and re-reads from offset 0
	ShrinkReset ShrinkPolicy = "reset"
	// ShrinkSkip leaves state untouched and logs a warning
	ShrinkSkip ShrinkPolicy = "skip"
)

// ParseShrinkPolicy validates a configured policy name
func ParseShrinkPolicy(s string) (ShrinkPolicy, error) {
	switch ShrinkPolicy(s) {
	case "", ShrinkReset:
		return ShrinkReset, nil
	case ShrinkSkip:
		return ShrinkSkip, nil
	default:
		return "", fmt.Errorf("unknown shrink policy %q", s)
	}
}

// Range is a half-open byte range
type Range struct {
	From int64
	To   int64
}

// Empty reports whether there is nothing to read
func (r Range) Empty() bool {
	return r.To <= r.From
}

// Len returns the number of bytes in the range
func (r Range) Len() int64 {
	if r.Empty() {
		return 0
	}
	return r.To - r.From
}

// Tracker is the state machine of one watched file
type Tracker struct {
	path string

	mu    sync.Mutex
	state State
}

// New returns a tracker in the Discovered state
func New(path string) *Tracker {
	return &Tracker{path: path, state: Discovered}
}

// Path returns the tracked path
func (t *Tracker) Path() string {
	return t.path
}

// State returns the current state
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Plan returns the range to read given the current size and cursor
func (t *Tracker) Plan(size, readUntil int64) (Range, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Removed {
		return Range{}, ErrRemoved
	}
	if size < readUntil {
		return Range{}, &reader.ShrinkError{Path: t.path, From: readUntil, To: size}
	}
	return Range{From: readUntil, To: size}, nil
}

// Advance records a committed read
func (t *Tracker) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Discovered {
		t.state = Tracking
	}
}

// Clear moves the file back to Discovered after its content was reset
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Removed {
		t.state = Discovered
	}
}

// Remove marks the tracker as terminal
func (t *Tracker) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Removed
}
