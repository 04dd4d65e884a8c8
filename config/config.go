// ABOUTME: Application configuration loaded from XDG JSON, .env and CRMSYNC_* variables
// ABOUTME: Later sources win: file, then .env, then the process environment

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/charm"
)

const (
	// AppName is used for XDG directories and the environment prefix.
	AppName = "crmsync"

	// SinceLayout is the format of DefaultSince, matching the legacy feed.
	SinceLayout = "2006-01-02 15:04:05"

	BackendDB    = "db"
	BackendCharm = "charm"
)

// Duration is a time.Duration that reads "30s" style text from JSON and env.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %w", err)
		}
		d.Duration = time.Duration(n) * time.Second
		return nil
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds every setting the commands need.
type Config struct {
	DatabaseDriver string `json:"database_driver" envconfig:"DATABASE_DRIVER"`
	DatabasePath   string `json:"database_path" envconfig:"DATABASE_PATH"`
	DatabaseDSN    string `json:"database_dsn,omitempty" envconfig:"DATABASE_DSN"`

	LegacyBaseURL       string   `json:"legacy_base_url" envconfig:"LEGACY_BASE_URL"`
	LegacyEndpointParam string   `json:"legacy_endpoint_param" envconfig:"LEGACY_ENDPOINT_PARAM"`
	LegacyTimeout       Duration `json:"legacy_timeout" envconfig:"LEGACY_TIMEOUT"`
	LegacyUserAgent     string   `json:"legacy_user_agent" envconfig:"LEGACY_USER_AGENT"`
	DefaultSince        string   `json:"default_since" envconfig:"DEFAULT_SINCE"`

	WatermarkBackend string `json:"watermark_backend" envconfig:"WATERMARK_BACKEND"`
	CharmHost        string `json:"charm_host,omitempty" envconfig:"CHARM_HOST"`
	CharmAutoSync    bool   `json:"charm_auto_sync" envconfig:"CHARM_AUTO_SYNC"`
	CharmDatabase    string `json:"charm_database,omitempty" envconfig:"CHARM_DATABASE"`

	DaemonInterval Duration `json:"daemon_interval" envconfig:"DAEMON_INTERVAL"`
	ListenAddr     string   `json:"listen_addr" envconfig:"LISTEN_ADDR"`

	// AdminTokens may call every endpoint.
	AdminTokens []string `json:"admin_tokens,omitempty" envconfig:"ADMIN_TOKENS"`
	// UserTokens maps a bearer token to the caller's legacy staff id.
	UserTokens map[string]string `json:"user_tokens,omitempty" envconfig:"USER_TOKENS"`

	LogLevel  string `json:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `json:"log_format" envconfig:"LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DatabaseDriver:      "sqlite3",
		DatabasePath:        filepath.Join(xdg.DataHome, AppName, AppName+".db"),
		LegacyEndpointParam: "var",
		LegacyTimeout:       Duration{30 * time.Second},
		LegacyUserAgent:     "EspoCRM-DataSync/1.0",
		DefaultSince:        "2020-01-01 00:00:00",
		WatermarkBackend:    BackendDB,
		CharmHost:           charm.DefaultCharmHost,
		CharmAutoSync:       true,
		CharmDatabase:       AppName,
		DaemonInterval:      Duration{15 * time.Minute},
		ListenAddr:          "127.0.0.1:8080",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// DefaultPath is $XDG_CONFIG_HOME/crmsync/config.json.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.json")
}

// Load builds the configuration. An empty path means DefaultPath; a missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(AppName, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration as JSON, creating the directory.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite3", "sqlite":
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}

	switch c.WatermarkBackend {
	case BackendDB, BackendCharm:
	default:
		return fmt.Errorf("unsupported watermark backend %q", c.WatermarkBackend)
	}

	if _, err := c.Since(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if c.LegacyTimeout.Duration <= 0 {
		return fmt.Errorf("legacy_timeout must be positive")
	}
	return nil
}

// Since parses DefaultSince as UTC.
func (c *Config) Since() (time.Time, error) {
	t, err := time.ParseInLocation(SinceLayout, strings.TrimSpace(c.sinceText()), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid default_since %q: %w", c.DefaultSince, err)
	}
	return t, nil
}

func (c *Config) sinceText() string {
	if c.DefaultSince == "" {
		return Default().DefaultSince
	}
	return c.DefaultSince
}

// DSN returns what the database driver should open.
func (c *Config) DSN() string {
	if c.DatabaseDriver == "postgres" {
		return c.DatabaseDSN
	}
	return c.DatabasePath
}

// Charm returns the settings for the charm watermark backend.
func (c *Config) Charm() charm.Config {
	return charm.Config{Host: c.CharmHost, AutoSync: c.CharmAutoSync, Database: c.CharmDatabase}
}

// Logger returns a logrus logger with the configured level and format.
func (c *Config) Logger() *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger
}
