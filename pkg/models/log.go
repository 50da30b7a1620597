package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvalidDate is the clock text used when a record carries no parseable timestamp
const InvalidDate = "Invalid date"

// DefaultFileColor is assigned to files added without an explicit color
const DefaultFileColor = "#00000"

// File represents one watched path
type File struct {
	Path         string    `json:"path" bson:"path" yaml:"path"`
	Name         string    `json:"name" bson:"name" yaml:"name"`
	Enabled      bool      `json:"enabled" bson:"enabled" yaml:"enabled"`
	Color        string    `json:"color" bson:"color" yaml:"color"`
	LastModified time.Time `json:"lastModified" bson:"last_modified" yaml:"last_modified"`
	ReadUntil    int64     `json:"readUntil" bson:"read_until" yaml:"read_until"`

	// Epoch is bumped every time the file is added or cleared. Reads
	// planned against an older epoch are discarded on commit.
	Epoch uint64 `json:"-" bson:"-" yaml:"-"`
}

// NewFile returns an enabled file with its display name filled in
func NewFile(path string, modTime time.Time) File {
	return File{
		Path:         path,
		Name:         DisplayName(path),
		Enabled:      true,
		Color:        DefaultFileColor,
		LastModified: modTime,
	}
}

// DisplayName keeps the last two path segments, e.g. "/var/log/app/a.log" -> "app/a.log"
func DisplayName(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= 2 {
		return strings.Join(parts, "/")
	}
	return strings.Join(parts[len(parts)-2:], "/")
}

// Logger is a named rule matching a record's raw logger field by prefix
type Logger struct {
	Name      string  `json:"name" bson:"name" yaml:"name"`
	Color     string  `json:"color" bson:"color" yaml:"color"`
	BgColor   string  `json:"bgColor" bson:"bg_color" yaml:"bg_color"`
	BgOpacity float64 `json:"bgOpacity" bson:"bg_opacity" yaml:"bg_opacity"`
	Enabled   bool    `json:"enabled" bson:"enabled" yaml:"enabled"`
}

// Level is a user-defined severity bucket matched by exact name
type Level struct {
	Name     string `json:"name" bson:"name" yaml:"name"`
	Severity int    `json:"severity" bson:"severity" yaml:"severity"`
	Color    string `json:"color" bson:"color" yaml:"color"`
	Enabled  bool   `json:"enabled" bson:"enabled" yaml:"enabled"`
}

// Settings describe which record fields hold which values. Empty keys fall
// back to the defaults below.
type Settings struct {
	TimestampKey string `json:"timestampKey" bson:"timestamp_key" yaml:"timestamp_key"`
	LevelKey     string `json:"levelKey" bson:"level_key" yaml:"level_key"`
	LoggerKey    string `json:"loggerKey" bson:"logger_key" yaml:"logger_key"`
	UserKey      string `json:"userKey" bson:"user_key" yaml:"user_key"`
	PayloadKey   string `json:"payloadKey" bson:"payload_key" yaml:"payload_key"`
	MessageKey   string `json:"messageKey" bson:"message_key" yaml:"message_key"`
	PayloadParse bool   `json:"payloadParse" bson:"payload_parse" yaml:"payload_parse"`
}

// Default field names
var (
	DefaultTimestampKeys = []string{"timestamp", "time"}
	DefaultLevelKey      = "level"
	DefaultLoggerKey     = "logger"
	DefaultUserKey       = "user"
	DefaultPayloadKey    = "payload"
	DefaultMessageKeys   = []string{"message", "msg"}
)

// Filters is the query applied to the log collection
type Filters struct {
	Message  string `json:"message" bson:"message" yaml:"message"`
	Logger   string `json:"logger" bson:"logger" yaml:"logger"`
	User     string `json:"user" bson:"user" yaml:"user"`
	Duration string `json:"duration" bson:"duration" yaml:"duration"`
}

// DefaultFilters matches everything
func DefaultFilters() Filters {
	return Filters{Duration: DurationEver}
}

// Log is one normalized record. Everything below Raw is derived and gets
// recomputed whenever loggers, levels or settings change.
type Log struct {
	ID         uuid.UUID `json:"id"`
	File       string    `json:"file"`
	Raw        any       `json:"raw"`
	ReceivedAt time.Time `json:"receivedAt"`

	Message   string    `json:"message"`
	User      string    `json:"user,omitempty"`
	RawLevel  string    `json:"rawLevel,omitempty"`
	RawLogger string    `json:"rawLogger,omitempty"`
	Logger    string    `json:"logger,omitempty"`
	Level     string    `json:"level,omitempty"`
	Payload   *Node     `json:"payload,omitempty"`
	Date      time.Time `json:"date"`
	ValidDate bool      `json:"validDate"`
	Clock     string    `json:"clock"`
	FullClock string    `json:"fullClock"`
}
