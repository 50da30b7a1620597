package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/oicur0t/watchlogs/pkg/models"
)

// AddLogger adds a logger and renormalizes every log
func (s *Store) AddLogger(ctx context.Context, logger models.Logger) error {
	return s.do(ctx, "add_logger", func(cur *Snapshot) (*Snapshot, error) {
		if cur.loggerIndex(logger.Name) >= 0 {
			return nil, fmt.Errorf("logger %q: %w", logger.Name, ErrExists)
		}
		next := cur.clone()
		next.Loggers = append(next.Loggers, logger)
		s.renormalize(next, false)
		return next, nil
	})
}

// UpdateLogger replaces the logger called name. The replacement may carry a
// new name as long as it does not collide with another logger.
func (s *Store) UpdateLogger(ctx context.Context, name string, logger models.Logger) error {
	return s.do(ctx, "update_logger", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.loggerIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("logger %q: %w", name, ErrUnknownLogger)
		}
		if logger.Name != name && cur.loggerIndex(logger.Name) >= 0 {
			return nil, fmt.Errorf("logger %q: %w", logger.Name, ErrExists)
		}
		next := cur.clone()
		next.Loggers[i] = logger
		s.renormalize(next, false)
		return next, nil
	})
}

// RemoveLogger deletes a logger and renormalizes every log
func (s *Store) RemoveLogger(ctx context.Context, name string) error {
	return s.do(ctx, "remove_logger", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.loggerIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("logger %q: %w", name, ErrUnknownLogger)
		}
		next := cur.clone()
		next.Loggers = append(next.Loggers[:i], next.Loggers[i+1:]...)
		s.renormalize(next, false)
		return next, nil
	})
}

// AddLevel adds a level, keeping levels ordered by severity
func (s *Store) AddLevel(ctx context.Context, level models.Level) error {
	return s.do(ctx, "add_level", func(cur *Snapshot) (*Snapshot, error) {
		if cur.levelIndex(level.Name) >= 0 {
			return nil, fmt.Errorf("level %q: %w", level.Name, ErrExists)
		}
		next := cur.clone()
		next.Levels = append(next.Levels, level)
		sortLevels(next.Levels)
		s.renormalize(next, false)
		return next, nil
	})
}

// UpdateLevel replaces the level called name
func (s *Store) UpdateLevel(ctx context.Context, name string, level models.Level) error {
	return s.do(ctx, "update_level", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.levelIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("level %q: %w", name, ErrUnknownLevel)
		}
		if level.Name != name && cur.levelIndex(level.Name) >= 0 {
			return nil, fmt.Errorf("level %q: %w", level.Name, ErrExists)
		}
		next := cur.clone()
		next.Levels[i] = level
		sortLevels(next.Levels)
		s.renormalize(next, false)
		return next, nil
	})
}

// RemoveLevel deletes a level and renormalizes every log
func (s *Store) RemoveLevel(ctx context.Context, name string) error {
	return s.do(ctx, "remove_level", func(cur *Snapshot) (*Snapshot, error) {
		i := cur.levelIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("level %q: %w", name, ErrUnknownLevel)
		}
		next := cur.clone()
		next.Levels = append(next.Levels[:i], next.Levels[i+1:]...)
		s.renormalize(next, false)
		return next, nil
	})
}

// UpdateSettings replaces the settings. Dates may change, so the whole
// collection is re-sorted.
func (s *Store) UpdateSettings(ctx context.Context, settings models.Settings) error {
	return s.do(ctx, "update_settings", func(cur *Snapshot) (*Snapshot, error) {
		next := cur.clone()
		next.Settings = settings
		s.renormalize(next, true)
		return next, nil
	})
}

// UpdateFilters replaces the filters
func (s *Store) UpdateFilters(ctx context.Context, filters models.Filters) error {
	return s.do(ctx, "update_filters", func(cur *Snapshot) (*Snapshot, error) {
		if filters.Duration == "" {
			filters.Duration = models.DurationEver
		}
		next := cur.clone()
		next.Filters = filters
		return next, nil
	})
}

// renormalize rebuilds every log of snap against its current rules
func (s *Store) renormalize(snap *Snapshot, resort bool) {
	if len(snap.Logs) == 0 {
		return
	}
	rules := s.rules(snap)
	logs := make([]*models.Log, len(snap.Logs))
	for i, l := range snap.Logs {
		logs[i] = s.norm.Renormalize(l, rules)
	}
	if resort {
		sortNewest(logs)
	}
	snap.Logs = logs
}

func sortLevels(levels []models.Level) {
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Severity < levels[j].Severity
	})
}
