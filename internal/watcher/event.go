// Package watcher reports add, change and unlink events for a set of files.
package watcher

import (
	"fmt"
	"time"
)

// Op is the kind of filesystem event
type Op int

const (
	// OpAdd means the file appeared or is seen for the first time
	OpAdd Op = iota + 1
	// OpChange means the file was written to
	OpChange
	// OpUnlink means the file is gone
	OpUnlink
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpUnlink:
		return "unlink"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Event is delivered once the file has been quiet for the settle window.
// Size and ModTime come from a stat taken at delivery; they are zero for
// OpUnlink.
type Event struct {
	Path    string
	Op      Op
	Size    int64
	ModTime time.Time
}

// rawEvent is what a backend reports before debouncing
type rawEvent struct {
	path string
	op   Op
}

// backend produces raw events for individual paths
type backend interface {
	watch(path string) error
	unwatch(path string) error
	run(stop <-chan struct{}, emit func(rawEvent))
	close() error
}
