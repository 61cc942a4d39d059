// Package config provides configuration management for the application.
//
// Values are resolved in order: built-in defaults, an optional YAML file
// (with ${VAR} and ${VAR:-default} expansion), a .env file, then the
// process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when CONFIG_FILE is unset.
const DefaultConfigFile = "config/config.yaml"

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Upload  UploadConfig  `yaml:"upload"`
	Session SessionConfig `yaml:"session"`
	History HistoryConfig `yaml:"history"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LogConfig     `yaml:"logging"`
	Chat    ChatConfig    `yaml:"chat"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// BodySizeLimit caps request bodies, e.g. "40M" (1K..100M)
	BodySizeLimit string `yaml:"body_size_limit"`
	// APIKey, when set, guards the /api/uploads endpoints with a bearer token
	APIKey string `yaml:"api_key"`
}

// UploadConfig configures how picked files reach the document API.
type UploadConfig struct {
	// BaseURL is the document API origin
	BaseURL string `yaml:"base_url"`
	// Path is the upload endpoint path
	Path string `yaml:"path"`
	// Timeout bounds one upload attempt
	Timeout time.Duration `yaml:"timeout"`
	// MaxFileSize is the largest accepted pick in bytes
	MaxFileSize int64 `yaml:"max_file_size"`
	// SurfaceServerDetail shows the server's rejection reason instead of "Upload failed"
	SurfaceServerDetail bool `yaml:"surface_server_detail"`
}

// SessionConfig configures page session persistence.
type SessionConfig struct {
	// Store is "memory", "file", or "redis"
	Store string        `yaml:"store"`
	TTL   time.Duration `yaml:"ttl"`
	// Dir holds session files for the file store
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// HistoryConfig configures upload history recording.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
	BufferSize    int  `yaml:"buffer_size"`
	// FlushInterval is in seconds
	FlushInterval int `yaml:"flush_interval"`
}

// StorageConfig selects the history database.
type StorageConfig struct {
	// Type is "sqlite", "postgresql", or "mongodb"
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Format is "json", "pretty", or "auto"
	Format string `yaml:"format"`
	// Level is "debug", "info", "warn", or "error"
	Level string `yaml:"level"`
}

// ChatConfig configures the chat mount rendered after a successful upload.
type ChatConfig struct {
	MountID   string `yaml:"mount_id"`
	ScriptURL string `yaml:"script_url"`
}

// Result is the outcome of Load.
type Result struct {
	Config *Config
	// Source is the YAML file that was read, or "" when none was found.
	Source string
}

// buildDefaultConfig returns the configuration used when nothing overrides it.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "40M",
		},
		Upload: UploadConfig{
			BaseURL:     "http://localhost:8000",
			Path:        "/api/upload",
			Timeout:     5 * time.Minute,
			MaxFileSize: 32 << 20,
		},
		Session: SessionConfig{
			Store: "memory",
			TTL:   24 * time.Hour,
			Dir:   ".cache/sessions",
			Redis: RedisConfig{KeyPrefix: "docqa:session:"},
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
			BufferSize:    1000,
			FlushInterval: 5,
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: ".cache/docqa.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "docqa"},
		},
		Metrics: MetricsConfig{Endpoint: "/metrics"},
		Logging: LogConfig{Format: "auto", Level: "info"},
		Chat:    ChatConfig{MountID: "chat-root"},
	}
}

// Load reads configuration from file and environment
func Load() (*Result, error) {
	// .env never overrides variables already present in the environment
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	source, err := applyYAMLFile(cfg, path, explicit)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Result{Config: cfg, Source: source}, nil
}

// applyYAMLFile merges the YAML file at path over cfg. A missing file is only
// an error when it was requested explicitly.
func applyYAMLFile(cfg *Config, path string, required bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
		return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return path, nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. Unresolved placeholders
// without a default are left as-is.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides overlays environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	v := viper.New()
	v.AutomaticEnv()

	var errs []error
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}
	boolean := func(key string, dst *bool) {
		if !v.IsSet(key) {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v.GetString(key)))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		if !v.IsSet(key) {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v.GetString(key)))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		if !v.IsSet(key) {
			return
		}
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("PORT", &cfg.Server.Port)
	str("BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit)
	str("DOCQA_API_KEY", &cfg.Server.APIKey)

	str("UPLOAD_BASE_URL", &cfg.Upload.BaseURL)
	str("UPLOAD_PATH", &cfg.Upload.Path)
	duration("UPLOAD_TIMEOUT", &cfg.Upload.Timeout)
	if v.IsSet("UPLOAD_MAX_FILE_SIZE") {
		n, err := ParseSize(v.GetString("UPLOAD_MAX_FILE_SIZE"))
		if err != nil {
			errs = append(errs, fmt.Errorf("UPLOAD_MAX_FILE_SIZE: %w", err))
		} else {
			cfg.Upload.MaxFileSize = n
		}
	}
	boolean("UPLOAD_SURFACE_SERVER_DETAIL", &cfg.Upload.SurfaceServerDetail)

	str("SESSION_STORE", &cfg.Session.Store)
	duration("SESSION_TTL", &cfg.Session.TTL)
	str("SESSION_DIR", &cfg.Session.Dir)
	str("REDIS_URL", &cfg.Session.Redis.URL)
	str("REDIS_KEY_PREFIX", &cfg.Session.Redis.KeyPrefix)

	boolean("HISTORY_ENABLED", &cfg.History.Enabled)
	integer("HISTORY_RETENTION_DAYS", &cfg.History.RetentionDays)
	integer("HISTORY_BUFFER_SIZE", &cfg.History.BufferSize)
	integer("HISTORY_FLUSH_INTERVAL", &cfg.History.FlushInterval)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	integer("POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns)
	str("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	str("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	str("LOG_FORMAT", &cfg.Logging.Format)
	str("LOG_LEVEL", &cfg.Logging.Level)

	str("CHAT_MOUNT_ID", &cfg.Chat.MountID)
	str("CHAT_SCRIPT_URL", &cfg.Chat.ScriptURL)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s", "5m") and bare integers as seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if err := validateBaseURL(c.Upload.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("upload timeout must be positive, got %s", c.Upload.Timeout))
	}
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("upload max file size must be positive, got %d", c.Upload.MaxFileSize))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session TTL must be positive, got %s", c.Session.TTL))
	}
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		errs = append(errs, err)
	}

	switch c.Session.Store {
	case "memory", "file":
	case "redis":
		if c.Session.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when SESSION_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q (valid: memory, file, redis)", c.Session.Store))
	}

	if c.History.Enabled {
		switch c.Storage.Type {
		case "sqlite":
		case "postgresql":
			if c.Storage.PostgreSQL.URL == "" {
				errs = append(errs, errors.New("POSTGRES_URL is required when STORAGE_TYPE=postgresql"))
			}
		case "mongodb":
			if c.Storage.MongoDB.URL == "" {
				errs = append(errs, errors.New("MONGODB_URL is required when STORAGE_TYPE=mongodb"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown storage type %q (valid: sqlite, postgresql, mongodb)", c.Storage.Type))
		}
	}

	switch c.Logging.Format {
	case "", "auto", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (valid: auto, json, pretty)", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("metrics endpoint must start with '/', got %q", c.Metrics.Endpoint))
	}

	return errors.Join(errs...)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid upload base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid upload base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid upload base URL %q: missing host", raw)
	}
	return nil
}

var sizePattern = regexp.MustCompile(`^(\d+)([KMGkmg][Bb]?)?$`)

// ParseSize parses sizes like "1048576", "100K", "10MB" or "1G" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size %q (expected e.g. 1048576, 100K, 10M)", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	switch strings.ToUpper(strings.TrimSuffix(strings.ToUpper(m[2]), "B")) {
	case "K":
		n <<= 10
	case "M":
		n <<= 20
	case "G":
		n <<= 30
	}
	return n, nil
}

const (
	minBodySizeLimit = 1 << 10
	maxBodySizeLimit = 100 << 20
)

// ValidateBodySizeLimit checks a BODY_SIZE_LIMIT value. Empty means the default.
func ValidateBodySizeLimit(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := ParseSize(s)
	if err != nil {
		return fmt.Errorf("invalid body size limit: %w", err)
	}
	if n < minBodySizeLimit || n > maxBodySizeLimit {
		return fmt.Errorf("body size limit %q must be between 1K and 100M", s)
	}
	return nil
}
