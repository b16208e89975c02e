// Package config loads runtime configuration for the Mystic Studio binaries.
//
// Values are layered, later sources winning: built-in defaults, an optional
// YAML file, a .env file (which only fills variables not already set in
// the process environment) and environment variables. Command-line flags
// are applied on top by the binaries themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/mystic-studio/internal/editor"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvAddr            = "MYSTIC_ADDR"
	EnvModel           = "GEMINI_MODEL"
	EnvBaseURL         = "GEMINI_BASE_URL"
	EnvAspectRatio     = "MYSTIC_ASPECT_RATIO"
	EnvEditTimeout     = "MYSTIC_EDIT_TIMEOUT"
	EnvMaxUploadBytes  = "MYSTIC_MAX_UPLOAD_BYTES"
	EnvSessionTTL      = "MYSTIC_SESSION_TTL"
	EnvLogLevel        = "MYSTIC_LOG_LEVEL"
	EnvLogJSON         = "MYSTIC_LOG_JSON"
	EnvCORSOrigin      = "MYSTIC_CORS_ORIGIN"
	EnvRedisAddr       = "MYSTIC_REDIS_ADDR"
	EnvRedisPassword   = "MYSTIC_REDIS_PASSWORD"
	EnvRedisDB         = "MYSTIC_REDIS_DB"
	EnvHistoryTable    = "MYSTIC_HISTORY_TABLE"
	EnvHistoryBucket   = "MYSTIC_HISTORY_BUCKET"
	EnvHistoryCapacity = "MYSTIC_HISTORY_CAPACITY"
)

// Defaults.
const (
	DefaultAddr            = ":8080"
	DefaultModel           = editor.DefaultModelName
	DefaultAspectRatio     = editor.DefaultAspectRatio
	DefaultEditTimeout     = 120 * time.Second
	DefaultMaxUploadBytes  = 20 << 20
	DefaultSessionTTL      = 24 * time.Hour
	DefaultHistoryCapacity = 50
)

// SupportedAspectRatios lists the output ratios the Gemini image models accept.
var SupportedAspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}

// RedisConfig selects the Redis session store. An empty Addr keeps sessions
// in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HistoryConfig selects the history store. With Table and Bucket set,
// history goes to DynamoDB and S3; otherwise the last Capacity edits are
// kept in memory.
type HistoryConfig struct {
	Table    string `yaml:"table"`
	Bucket   string `yaml:"bucket"`
	Capacity int    `yaml:"capacity"`
}

// Config is the merged runtime configuration. It never holds the API key;
// that is resolved by the auth package.
type Config struct {
	Addr           string        `yaml:"addr"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"gemini_base_url"`
	AspectRatio    string        `yaml:"aspect_ratio"`
	EditTimeout    time.Duration `yaml:"edit_timeout"`
	MaxUploadBytes int           `yaml:"max_upload_bytes"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	LogLevel       string        `yaml:"log_level"`
	LogJSON        bool          `yaml:"log_json"`
	CORSOrigin     string        `yaml:"cors_origin"`
	Redis          RedisConfig   `yaml:"redis"`
	History        HistoryConfig `yaml:"history"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:           DefaultAddr,
		Model:          DefaultModel,
		AspectRatio:    DefaultAspectRatio,
		EditTimeout:    DefaultEditTimeout,
		MaxUploadBytes: DefaultMaxUploadBytes,
		SessionTTL:     DefaultSessionTTL,
		LogLevel:       "info",
		History:        HistoryConfig{Capacity: DefaultHistoryCapacity},
	}
}

// Load builds the configuration. path names an optional YAML file; an
// explicitly named file that does not exist is an error. envFiles are
// loaded with godotenv when present (default ".env").
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, EnvAddr)
	setString(&c.Model, EnvModel)
	setString(&c.BaseURL, EnvBaseURL)
	setString(&c.AspectRatio, EnvAspectRatio)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.CORSOrigin, EnvCORSOrigin)
	setString(&c.Redis.Addr, EnvRedisAddr)
	setString(&c.Redis.Password, EnvRedisPassword)
	setString(&c.History.Table, EnvHistoryTable)
	setString(&c.History.Bucket, EnvHistoryBucket)

	var errs []error
	errs = append(errs,
		setDuration(&c.EditTimeout, EnvEditTimeout),
		setDuration(&c.SessionTTL, EnvSessionTTL),
		setInt(&c.MaxUploadBytes, EnvMaxUploadBytes),
		setInt(&c.Redis.DB, EnvRedisDB),
		setInt(&c.History.Capacity, EnvHistoryCapacity),
		setBool(&c.LogJSON, EnvLogJSON),
	)
	return errors.Join(errs...)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if !isSupportedAspectRatio(c.AspectRatio) {
		errs = append(errs, fmt.Errorf("aspect_ratio %q is not one of %s", c.AspectRatio, strings.Join(SupportedAspectRatios, ", ")))
	}
	if c.EditTimeout <= 0 {
		errs = append(errs, fmt.Errorf("edit_timeout must be positive, got %s", c.EditTimeout))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("session_ttl must not be negative, got %s", c.SessionTTL))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q must be debug, info, warn or error", c.LogLevel))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB))
	}
	if (c.History.Table == "") != (c.History.Bucket == "") {
		errs = append(errs, errors.New("history.table and history.bucket must be set together"))
	}
	if c.History.Capacity < 0 {
		errs = append(errs, fmt.Errorf("history.capacity must not be negative, got %d", c.History.Capacity))
	}
	return errors.Join(errs...)
}

// UsesRedis reports whether sessions are stored in Redis.
func (c *Config) UsesRedis() bool {
	return c.Redis.Addr != ""
}

// UsesDynamoHistory reports whether history is stored in DynamoDB and S3.
func (c *Config) UsesDynamoHistory() bool {
	return c.History.Table != "" && c.History.Bucket != ""
}

func isSupportedAspectRatio(r string) bool {
	for _, s := range SupportedAspectRatios {
		if s == r {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
