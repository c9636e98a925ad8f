// Package config loads application configuration from a YAML file plus
// environment variables, using koanf-based layering: defaults -> config
// file -> environment variables, later overriding earlier. The core also
// recognizes a fixed set of environment variables that address the
// config/data directory layout
// directly rather than through the generic SHISHO_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ServerHost string `koanf:"server_host" json:"server_host"`
	ServerPort int    `koanf:"server_port" json:"server_port"`

	// Database settings
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" json:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" json:"database_connect_retry_delay"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" json:"database_busy_timeout"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" json:"database_max_retries"`
	DatabaseDebug             bool          `koanf:"database_debug" json:"database_debug"`

	// Job engine settings
	WorkerProcesses      int `koanf:"worker_processes" json:"worker_processes"`
	ScanConcurrency      int `koanf:"scan_concurrency" json:"scan_concurrency"`
	ThumbnailConcurrency int `koanf:"thumbnail_concurrency" json:"thumbnail_concurrency"`
	ScanBatchSize        int `koanf:"scan_batch_size" json:"scan_batch_size"`

	// Scheduler
	ScanIntervalSeconds int `koanf:"scan_interval_seconds" json:"scan_interval_seconds"`

	// Env-only settings; not exposed through the YAML config file.
	ConfigDir                    string        `koanf:"-" json:"config_dir"`
	Profile                      string        `koanf:"-" json:"profile"`
	SessionTTL                   time.Duration `koanf:"-" json:"session_ttl"`
	SessionExpiryCleanupInterval time.Duration `koanf:"-" json:"session_expiry_cleanup_interval"`
	HashCost                     int           `koanf:"-" json:"hash_cost"`
	ForceResetDB                 bool          `koanf:"-" json:"-"`

	// Computed, not configurable directly.
	DatabaseFilePath string `koanf:"-" json:"-" validate:"required"`
	LogFilePath      string `koanf:"-" json:"-"`
	ThumbnailsDir    string `koanf:"-" json:"-"`
	Hostname         string `koanf:"-" json:"-"`
}

// defaults returns a Config with default values.
func defaults() *Config {
	return &Config{
		ServerHost: "0.0.0.0",
		ServerPort: 3689,

		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseMaxRetries:        5,
		DatabaseDebug:             false,

		WorkerProcesses:      2,
		ScanConcurrency:      defaultScanConcurrency(),
		ThumbnailConcurrency: 4,
		ScanBatchSize:        50,

		ScanIntervalSeconds: 3600,

		SessionTTL:                   3 * 24 * time.Hour,
		SessionExpiryCleanupInterval: 60 * time.Second,
		HashCost:                     12,
	}
}

func defaultScanConcurrency() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// New creates a new Config by loading from file and environment variables.
// Load order (later sources override earlier):
//  1. Defaults
//  2. Config file (${CONFIG_DIR}/shisho.yaml or CONFIG_FILE env var)
//  3. Generic SHISHO_-prefixed environment variables
//  4. The fixed set of named environment variables below
func New() (*Config, error) {
	cfg := defaults()

	configDir := resolveConfigDir()
	cfg.ConfigDir = configDir

	k := koanf.New(".")

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = filepath.Join(configDir, "shisho.yaml")
	}
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to load config file %s", configPath)
		}
	}

	if err := k.Load(env.Provider("SHISHO_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "SHISHO_"))
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment variables")
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	applyNamedEnvVars(cfg)

	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get hostname")
	}
	cfg.Hostname = hostname

	cfg.DatabaseFilePath = filepath.Join(cfg.ConfigDir, "stump.db")
	cfg.LogFilePath = filepath.Join(cfg.ConfigDir, "Stump.log")
	cfg.ThumbnailsDir = filepath.Join(cfg.ConfigDir, "thumbnails")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveConfigDir implements STUMP_CONFIG_DIR, defaulting to
// $HOME/.stump.
func resolveConfigDir() string {
	if dir := os.Getenv("STUMP_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".stump")
}

// applyNamedEnvVars layers the fixed, individually named environment
// variables on top of whatever the YAML file / SHISHO_ env vars produced.
func applyNamedEnvVars(cfg *Config) {
	cfg.Profile = os.Getenv("STUMP_PROFILE")

	if v := os.Getenv("SESSION_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTL = time.Duration(secs) * time.Second
		}
	}
	if v, ok := os.LookupEnv("SESSION_EXPIRY_CLEANUP_INTERVAL"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.SessionExpiryCleanupInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("HASH_COST"); v != "" {
		if cost, err := strconv.Atoi(v); err == nil {
			cfg.HashCost = cost
		}
	}
	cfg.ForceResetDB = os.Getenv("FORCE_RESET_DB") == "true" && cfg.Profile == "debug"
}

// NewForTest creates a Config for testing with minimal required fields.
func NewForTest(tmpDir string) *Config {
	cfg := defaults()
	cfg.ConfigDir = tmpDir
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 0
	cfg.DatabaseFilePath = filepath.Join(tmpDir, "stump.db")
	cfg.LogFilePath = filepath.Join(tmpDir, "Stump.log")
	cfg.ThumbnailsDir = filepath.Join(tmpDir, "thumbnails")
	cfg.DatabaseDebug = false
	cfg.Hostname = "test-host"
	cfg.WorkerProcesses = 1
	cfg.ScanConcurrency = 2
	return cfg
}

// validateConfig validates the config and returns user-friendly error messages.
func validateConfig(cfg *Config) error {
	validate := validator.New()
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, "config validation failed")
	}

	var msgs []string
	for _, e := range validationErrors {
		field := e.StructField()
		tag := e.Tag()

		switch tag {
		case "required":
			msgs = append(msgs, fmt.Sprintf("missing required config: %s", field))
		default:
			msgs = append(msgs, fmt.Sprintf("invalid config %s: %s", field, tag))
		}
	}

	return errors.New("configuration validation failed:\n\n" + strings.Join(msgs, "\n\n"))
}
