// Package parser turns newline-delimited JSON into raw values.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"
)

// Record is one successfully decoded line
type Record struct {
	Line  int
	Value any
}

// ParseError describes a malformed line. Line numbers are 1-based and count
// every line of the batch, blank ones included.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: invalid JSON: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse splits data on newlines, trims each line, skips blank ones and
// decodes the rest. Malformed lines are yielded as *ParseError and iteration
// continues. The sequence consumes data and can be ranged over only once.
func Parse(data []byte) iter.Seq2[Record, error] {
	rest := data
	lineNo := 0
	return func(yield func(Record, error) bool) {
		for len(rest) > 0 {
			var line []byte
			if i := bytes.IndexByte(rest, '\n'); i >= 0 {
				line, rest = rest[:i], rest[i+1:]
			} else {
				line, rest = rest, nil
			}
			lineNo++

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			v, err := decodeLine(line)
			if err != nil {
				if !yield(Record{}, &ParseError{Line: lineNo, Text: string(line), Err: err}) {
					return
				}
				continue
			}
			if !yield(Record{Line: lineNo, Value: v}, nil) {
				return
			}
		}
	}
}

// decodeLine decodes exactly one JSON value, keeping numbers as json.Number
func decodeLine(line []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// LogParser collects the values of a batch and reports bad lines
type LogParser struct {
	logger *zap.Logger
}

// NewLogParser creates a new log parser
func NewLogParser(logger *zap.Logger) *LogParser {
	return &LogParser{logger: logger}
}

// ParseBatch returns the decoded values of data in order. Malformed lines are
// logged and skipped; the count of skipped lines is returned alongside.
func (p *LogParser) ParseBatch(path string, data []byte) ([]any, int) {
	var values []any
	skipped := 0
	for rec, err := range Parse(data) {
		if err != nil {
			skipped++
			var perr *ParseError
			if errors.As(err, &perr) {
				p.logger.Warn("Skipping malformed log line",
					zap.String("file", path),
					zap.Int("line", perr.Line),
					zap.Error(perr.Err))
			}
			continue
		}
		values = append(values, rec.Value)
	}
	return values, skipped
}
