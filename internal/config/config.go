// Package config loads watchlogs settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oicur0t/watchlogs/internal/prefstore"
	"github.com/oicur0t/watchlogs/internal/tracker"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. WATCHLOGS_LOG_LEVEL
const EnvPrefix = "WATCHLOGS"

// WatcherConfig selects how file changes are detected
type WatcherConfig struct {
	Settle       time.Duration `mapstructure:"settle"`
	Poll         bool          `mapstructure:"poll"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ReaderConfig bounds reads
type ReaderConfig struct {
	MaxRange      int64  `mapstructure:"max_range"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	OnShrink      string `mapstructure:"on_shrink"`
}

// PrefsConfig selects the preference backend
type PrefsConfig struct {
	Backend string                `mapstructure:"backend"`
	Dir     string                `mapstructure:"dir"`
	MongoDB prefstore.MongoConfig `mapstructure:"mongodb"`
}

// Config represents the complete configuration
type Config struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
	Timezone  string        `mapstructure:"timezone"`
	Files     []string      `mapstructure:"files"`
	Watcher   WatcherConfig `mapstructure:"watcher"`
	Reader    ReaderConfig  `mapstructure:"reader"`
	Prefs     PrefsConfig   `mapstructure:"prefs"`
}

// Location resolves the display time zone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return loc, nil
}

// ShrinkPolicy returns the parsed reader.on_shrink value
func (c *Config) ShrinkPolicy() tracker.ShrinkPolicy {
	p, _ := tracker.ParseShrinkPolicy(c.Reader.OnShrink)
	return p
}

// Load reads the configuration. With an empty path the default locations
// are searched and a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
	v.SetDefault("timezone", "local")
	v.SetDefault("files", []string{})
	v.SetDefault("watcher.settle", "500ms")
	v.SetDefault("watcher.poll", false)
	v.SetDefault("watcher.poll_interval", "250ms")
	v.SetDefault("reader.max_range", int64(1<<30))
	v.SetDefault("reader.max_concurrent", 4)
	v.SetDefault("reader.on_shrink", string(tracker.ShrinkReset))
	v.SetDefault("prefs.backend", "file")
	v.SetDefault("prefs.dir", defaultPrefsDir())
	v.SetDefault("prefs.mongodb.database", "watchlogs")
	v.SetDefault("prefs.mongodb.collection_prefix", "prefs_")
	v.SetDefault("prefs.mongodb.profile", "default")
	v.SetDefault("prefs.mongodb.max_pool_size", 4)
	v.SetDefault("prefs.mongodb.timeout", "10s")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "watchlogs"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.Prefs.Dir = expandHome(config.Prefs.Dir)
	return &config, nil
}

// Validate checks value ranges and enums
func (c *Config) Validate() error {
	if c.Watcher.Settle < 0 {
		return fmt.Errorf("watcher.settle must not be negative")
	}
	if c.Reader.MaxRange <= 0 {
		return fmt.Errorf("reader.max_range must be positive")
	}
	if c.Reader.MaxConcurrent <= 0 {
		return fmt.Errorf("reader.max_concurrent must be positive")
	}
	if _, err := tracker.ParseShrinkPolicy(c.Reader.OnShrink); err != nil {
		return fmt.Errorf("reader.on_shrink: %w", err)
	}
	switch c.Prefs.Backend {
	case "file":
		if c.Prefs.Dir == "" {
			return fmt.Errorf("prefs.dir is required")
		}
	case "mongo":
		if c.Prefs.MongoDB.URI == "" {
			return fmt.Errorf("prefs.mongodb.uri is required")
		}
	case "none":
	default:
		return fmt.Errorf("unknown prefs.backend %q", c.Prefs.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func defaultPrefsDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".watchlogs")
	}
	return filepath.Join(dir, "watchlogs", "prefs")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
