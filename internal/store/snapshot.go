package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oicur0t/watchlogs/pkg/models"
)

// Snapshot is an immutable view of the store. Callers must not modify the
// slices or the logs they point to.
type Snapshot struct {
	Revision uint64
	Files    []models.File
	Loggers  []models.Logger
	Levels   []models.Level
	Settings models.Settings
	Filters  models.Filters

	// Logs are ordered newest first
	Logs []*models.Log

	ui uiState
}

// uiState is the side table for display-only flags. Maps are replaced, never
// edited, once a snapshot is published.
type uiState struct {
	opened   map[uuid.UUID]bool
	expanded map[uuid.UUID]map[string]bool
}

// clone copies the small collections. Logs are shared since every mutation
// that touches them builds a fresh slice.
func (s *Snapshot) clone() *Snapshot {
	next := *s
	next.Files = append([]models.File(nil), s.Files...)
	next.Loggers = append([]models.Logger(nil), s.Loggers...)
	next.Levels = append([]models.Level(nil), s.Levels...)
	return &next
}

// File looks a file up by path
func (s *Snapshot) File(path string) (models.File, bool) {
	if i := s.fileIndex(path); i >= 0 {
		return s.Files[i], true
	}
	return models.File{}, false
}

func (s *Snapshot) fileIndex(path string) int {
	for i, f := range s.Files {
		if f.Path == path {
			return i
		}
	}
	return -1
}

func (s *Snapshot) loggerIndex(name string) int {
	for i, l := range s.Loggers {
		if l.Name == name {
			return i
		}
	}
	return -1
}

func (s *Snapshot) levelIndex(name string) int {
	for i, l := range s.Levels {
		if l.Name == name {
			return i
		}
	}
	return -1
}

// Log looks a log up by ID
func (s *Snapshot) Log(id uuid.UUID) (*models.Log, bool) {
	for _, l := range s.Logs {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// Opened reports whether the log's details are expanded
func (s *Snapshot) Opened(id uuid.UUID) bool {
	return s.ui.opened[id]
}

// Expanded reports whether the payload node at path is expanded. Nodes are
// collapsed by default.
func (s *Snapshot) Expanded(id uuid.UUID, path string) bool {
	return s.ui.expanded[id][path]
}

// Visible returns the logs passing the enabled switches and the filters, in
// store order
func (s *Snapshot) Visible(now time.Time) []*models.Log {
	m := newMatcher(s)
	out := make([]*models.Log, 0, len(s.Logs))
	for _, log := range s.Logs {
		if m.enabled(log) && m.matches(log, now) {
			out = append(out, log)
		}
	}
	return out
}

type matcher struct {
	files    map[string]bool
	loggers  map[string]bool
	levels   map[string]bool
	filters  models.Filters
	duration time.Duration
}

func newMatcher(s *Snapshot) *matcher {
	m := &matcher{
		files:    make(map[string]bool, len(s.Files)),
		loggers:  make(map[string]bool, len(s.Loggers)),
		levels:   make(map[string]bool, len(s.Levels)),
		filters:  s.Filters,
		duration: models.FindDuration(s.Filters.Duration).Duration,
	}
	for _, f := range s.Files {
		m.files[f.Path] = f.Enabled
	}
	for _, l := range s.Loggers {
		m.loggers[l.Name] = l.Enabled
	}
	for _, l := range s.Levels {
		m.levels[l.Name] = l.Enabled
	}
	return m
}

func (m *matcher) enabled(log *models.Log) bool {
	if !m.files[log.File] {
		return false
	}
	if log.Logger != "" && !m.loggers[log.Logger] {
		return false
	}
	if log.Level != "" && !m.levels[log.Level] {
		return false
	}
	return true
}

// matches applies the filters. The duration filter keeps logs at least that
// old.
func (m *matcher) matches(log *models.Log, now time.Time) bool {
	if m.duration > 0 && now.Sub(log.Date) < m.duration {
		return false
	}
	if m.filters.Logger != "" && !strings.HasPrefix(log.RawLogger, m.filters.Logger) {
		return false
	}
	if m.filters.Message != "" && !strings.Contains(log.Message, m.filters.Message) {
		return false
	}
	if m.filters.User != "" && log.User != m.filters.User {
		return false
	}
	return true
}
