// Package config loads entql settings from a YAML or JSON-with-comments
// file.
//
// A config names the SQLite database, the CUE schema and the context to
// open, plus storage and logging knobs:
//
//	database: blog.db
//	schema: ./schema
//	context: BlogContext
//	db_creation: if-not-exists
//	log_level: info
//	busy_timeout_ms: 5000
//	metrics: false
//
// Relative database and schema paths are resolved against the directory
// holding the config file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/entql/internal/sqlgen"
)

// Sentinel errors returned (wrapped) by Load and Validate.
var (
	ErrConfigRead     = errors.New("cannot read config file")
	ErrConfigInvalid  = errors.New("invalid config file")
	ErrUnknownFormat  = errors.New("unknown config format")
	ErrDatabaseEmpty  = errors.New("database cannot be empty")
	ErrBadLogLevel    = errors.New("unknown log level")
	ErrBadBusyTimeout = errors.New("busy_timeout_ms must not be negative")
)

// Config holds the settings of one entql database.
type Config struct {
	Database      string `yaml:"database" json:"database"`
	Schema        string `yaml:"schema" json:"schema"`
	Context       string `yaml:"context" json:"context"`
	DBCreation    string `yaml:"db_creation" json:"db_creation"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
	Metrics       bool   `yaml:"metrics" json:"metrics"`

	// Source is the file the config was loaded from, empty for defaults.
	Source string `yaml:"-" json:"-"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database:      "entql.db",
		DBCreation:    sqlgen.IfNotExists.String(),
		LogLevel:      "info",
		BusyTimeoutMS: 5000,
	}
}

// Load reads the config at path. The format follows the extension: .yaml
// and .yml are YAML, .json, .jsonc and .hujson are JSON with comments and
// trailing commas. Unknown keys are rejected in both formats. Unset keys
// keep their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrConfigRead, path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".json", ".jsonc", ".hujson":
		err = decodeJSONC(data, &cfg)
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	dir := filepath.Dir(path)
	cfg.Database = resolve(dir, cfg.Database)
	cfg.Schema = resolve(dir, cfg.Schema)
	cfg.Source = path
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields
	if err := dec.Decode(cfg); err != nil {
		// An empty document leaves the defaults in place.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

func decodeJSONC(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// resolve makes a relative path relative to dir. The SQLite in-memory
// name is left alone.
func resolve(dir, p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || strings.HasPrefix(p, "file:") {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks every field that has a closed set of values.
func (c Config) Validate() error {
	if c.Database == "" {
		return ErrDatabaseEmpty
	}
	if _, err := sqlgen.ParseCreationMode(c.DBCreation); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.BusyTimeoutMS < 0 {
		return ErrBadBusyTimeout
	}
	return nil
}

// CreationMode returns the table creation mode named by DBCreation.
func (c Config) CreationMode() sqlgen.CreationMode {
	mode, err := sqlgen.ParseCreationMode(c.DBCreation)
	if err != nil {
		return sqlgen.IfNotExists
	}
	return mode
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// BusyTimeout returns BusyTimeoutMS as a duration.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// ParseLevel parses debug, info, warn or error. An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w %q", ErrBadLogLevel, s)
}
