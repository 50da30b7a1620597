// Package reader reads exact byte ranges out of files.
package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxRange bounds a single read to 1 GiB
const DefaultMaxRange int64 = 1 << 30

// ShrinkError means the file is now smaller than the recorded offset
type ShrinkError struct {
	Path string
	From int64
	To   int64
}

func (e *ShrinkError) Error() string {
	return fmt.Sprintf("file %s shrank: offset %d is past size %d", e.Path, e.From, e.To)
}

// RangeTooLargeError means a single read would exceed the configured ceiling
type RangeTooLargeError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *RangeTooLargeError) Error() string {
	return fmt.Sprintf("read of %d bytes from %s exceeds limit of %d", e.Size, e.Path, e.Limit)
}

// IOError wraps an open or read failure
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Reader reads [from, to) from a path
type Reader struct {
	maxRange int64
}

// New creates a reader. A non-positive maxRange selects DefaultMaxRange.
func New(maxRange int64) *Reader {
	if maxRange <= 0 {
		maxRange = DefaultMaxRange
	}
	return &Reader{maxRange: maxRange}
}

// Read returns exactly to-from bytes starting at offset from
func (r *Reader) Read(path string, from, to int64) ([]byte, error) {
	if to < from {
		return nil, &ShrinkError{Path: path, From: from, To: to}
	}
	if to-from > r.maxRange {
		return nil, &RangeTooLargeError{Path: path, Size: to - from, Limit: r.maxRange}
	}
	if to == from {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	buf := make([]byte, to-from)
	n, err := f.ReadAt(buf, from)
	if n == len(buf) {
		// ReadAt may report io.EOF together with a full buffer
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, &IOError{Path: path, Op: "read", Err: err}
}
