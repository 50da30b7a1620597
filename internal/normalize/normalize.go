// Package normalize derives display fields for raw log records.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/oicur0t/watchlogs/pkg/models"
	"go.uber.org/zap"
)

// Clock layouts
const (
	ClockLayout     = "15:04:05.000"
	FullClockLayout = "2006-01-02 15:04:05.000"
)

// Rules is a prepared view of loggers, levels and settings. Build one per
// store revision and share it across every record of a batch.
type Rules struct {
	loggers  []models.Logger // sorted by name, descending
	levels   map[string]models.Level
	settings models.Settings
}

// NewRules prepares matching tables
func NewRules(loggers []models.Logger, levels []models.Level, settings models.Settings) *Rules {
	sorted := make([]models.Logger, len(loggers))
	copy(sorted, loggers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name > sorted[j].Name })

	byName := make(map[string]models.Level, len(levels))
	for _, l := range levels {
		byName[l.Name] = l
	}
	return &Rules{loggers: sorted, levels: byName, settings: settings}
}

// MatchLogger returns the logger whose name is a prefix of raw. When several
// match, the lexicographically greatest name wins.
func (r *Rules) MatchLogger(raw string) (models.Logger, bool) {
	if raw == "" {
		return models.Logger{}, false
	}
	for _, l := range r.loggers {
		if strings.HasPrefix(raw, l.Name) {
			return l, true
		}
	}
	return models.Logger{}, false
}

// MatchLevel looks a level up by exact name
func (r *Rules) MatchLevel(raw string) (models.Level, bool) {
	l, ok := r.levels[raw]
	return l, ok
}

// Normalizer turns raw values into models.Log
type Normalizer struct {
	logger *zap.Logger
	loc    *time.Location
}

// New creates a normalizer formatting clocks in loc (time.Local when nil)
func New(logger *zap.Logger, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{logger: logger, loc: loc}
}

// Normalize builds a new Log with a fresh ID
func (n *Normalizer) Normalize(raw any, file string, receivedAt time.Time, rules *Rules) *models.Log {
	log := &models.Log{
		ID:         uuid.New(),
		File:       file,
		Raw:        raw,
		ReceivedAt: receivedAt,
	}
	n.derive(log, rules)
	return log
}

// Renormalize recomputes the derived fields of prev against rules. The
// result shares ID, file, raw value and receive time with prev.
func (n *Normalizer) Renormalize(prev *models.Log, rules *Rules) *models.Log {
	log := &models.Log{
		ID:         prev.ID,
		File:       prev.File,
		Raw:        prev.Raw,
		ReceivedAt: prev.ReceivedAt,
	}
	n.derive(log, rules)
	return log
}

func (n *Normalizer) derive(log *models.Log, rules *Rules) {
	s := rules.settings

	record, ok := log.Raw.(map[string]any)
	if !ok {
		// Non-object lines are shown as-is
		if msg, ok := scalarString(log.Raw); ok {
			log.Message = msg
		}
		record = nil
	}

	if record != nil {
		log.Message, _ = extract(record, keysOr(s.MessageKey, models.DefaultMessageKeys...)...)
		log.User, _ = extract(record, keysOr(s.UserKey, models.DefaultUserKey)...)
		log.RawLevel, _ = extract(record, keysOr(s.LevelKey, models.DefaultLevelKey)...)
		log.RawLogger, _ = extract(record, keysOr(s.LoggerKey, models.DefaultLoggerKey)...)
	}

	if l, ok := rules.MatchLogger(log.RawLogger); ok {
		log.Logger = l.Name
	}
	if l, ok := rules.MatchLevel(log.RawLevel); ok {
		log.Level = l.Name
	}

	date, valid := n.parseDate(record, s)
	if valid {
		log.Date = date
		log.ValidDate = true
		local := date.In(n.loc)
		log.Clock = local.Format(ClockLayout)
		log.FullClock = local.Format(FullClockLayout)
	} else {
		// The receive time stands in for "now" so renormalizing is stable
		log.Date = log.ReceivedAt
		log.Clock = models.InvalidDate
		log.FullClock = models.InvalidDate
	}

	if record != nil {
		if v, ok := lookup(record, keysOr(s.PayloadKey, models.DefaultPayloadKey)...); ok {
			log.Payload = models.BuildTree(n.parsePayload(log, v, s.PayloadParse))
		}
	}
}

func (n *Normalizer) parseDate(record map[string]any, s models.Settings) (time.Time, bool) {
	if record == nil {
		return time.Time{}, false
	}
	v, ok := lookup(record, keysOr(s.TimestampKey, models.DefaultTimestampKeys...)...)
	if !ok {
		return time.Time{}, false
	}

	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return time.Time{}, false
		}
		t, err := parseTime(val, n.loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case json.Number:
		// Numeric timestamps are epoch milliseconds
		if ms, err := val.Int64(); err == nil {
			return time.UnixMilli(ms), true
		}
		if f, err := val.Float64(); err == nil {
			return time.UnixMicro(int64(f * 1000)), true
		}
	case float64:
		return time.UnixMicro(int64(val * 1000)), true
	}
	return time.Time{}, false
}

// parseTime guards against panics inside the date parser on odd input
func parseTime(s string, loc *time.Location) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unparseable date %q: %v", s, r)
		}
	}()
	return dateparse.ParseIn(s, loc)
}

func (n *Normalizer) parsePayload(log *models.Log, v any, parse bool) any {
	s, ok := v.(string)
	if !parse || !ok {
		return v
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil || dec.More() {
		n.logger.Warn("Failed to parse payload, keeping raw string",
			zap.String("file", log.File),
			zap.String("log_id", log.ID.String()),
			zap.Error(err))
		return s
	}
	return parsed
}
