// Package render prints visible logs as colored text, JSON lines or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/pkg/models"
	"gopkg.in/yaml.v3"
)

// Renderer writes one log at a time
type Renderer interface {
	Render(snap *store.Snapshot, log *models.Log) error
}

// New picks a renderer by format name: text, json or yaml
func New(format string, w io.Writer) (Renderer, error) {
	switch format {
	case "", "text":
		return NewTextRenderer(w), nil
	case "json":
		return NewJSONRenderer(w), nil
	case "yaml":
		return NewYAMLRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// view is the structured form shared by the JSON and YAML renderers
type view struct {
	ID        string `json:"id" yaml:"id"`
	File      string `json:"file" yaml:"file"`
	Date      string `json:"date" yaml:"date"`
	Clock     string `json:"clock" yaml:"clock"`
	FullClock string `json:"fullClock" yaml:"full_clock"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	RawLevel  string `json:"rawLevel,omitempty" yaml:"raw_level,omitempty"`
	Logger    string `json:"logger,omitempty" yaml:"logger,omitempty"`
	RawLogger string `json:"rawLogger,omitempty" yaml:"raw_logger,omitempty"`
	User      string `json:"user,omitempty" yaml:"user,omitempty"`
	Message   string `json:"message" yaml:"message"`
	Payload   any    `json:"payload,omitempty" yaml:"payload,omitempty"`
}

func toView(log *models.Log) view {
	v := view{
		ID:        log.ID.String(),
		File:      log.File,
		Clock:     log.Clock,
		FullClock: log.FullClock,
		Level:     log.Level,
		RawLevel:  log.RawLevel,
		Logger:    log.Logger,
		RawLogger: log.RawLogger,
		User:      log.User,
		Message:   log.Message,
		Payload:   plain(log.Payload.Interface()),
	}
	if log.ValidDate {
		v.Date = log.Date.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return v
}

// plain turns json.Number into a float or int so YAML prints a number
func plain(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = plain(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = plain(item)
		}
		return val
	default:
		return v
	}
}

// JSONRenderer prints each log as a single JSON object per line
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a renderer writing JSON lines to w
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(_ *store.Snapshot, log *models.Log) error {
	return r.enc.Encode(toView(log))
}

// YAMLRenderer prints logs as a stream of YAML documents
type YAMLRenderer struct {
	w io.Writer
}

// NewYAMLRenderer returns a renderer writing YAML documents to w
func NewYAMLRenderer(w io.Writer) *YAMLRenderer {
	return &YAMLRenderer{w: w}
}

func (r *YAMLRenderer) Render(_ *store.Snapshot, log *models.Log) error {
	data, err := yaml.Marshal(toView(log))
	if err != nil {
		return fmt.Errorf("failed to encode log: %w", err)
	}
	if _, err := io.WriteString(r.w, "---\n"); err != nil {
		return err
	}
	_, err = r.w.Write(data)
	return err
}
