package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig holds settings for the notification backend.
type APIConfig struct {
	// BaseURL is the root URL of the backend (e.g., https://api.example.com/v1).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries is how many times a rate-limited request is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// Timeout returns the per-request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// SyncConfig holds refresh controller settings.
type SyncConfig struct {
	// PollIntervalSec is how often (in seconds) the controller refreshes.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// FetchTimeoutSec bounds one whole refresh cycle.
	FetchTimeoutSec int `mapstructure:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`

	// AlertLimit is the market alert window requested from the backend.
	AlertLimit int `mapstructure:"alert_limit" yaml:"alert_limit"`

	// ReadPolicy is "merge" (a read flag from either side wins) or
	// "remote" (the server value wins).
	ReadPolicy string `mapstructure:"read_policy" yaml:"read_policy"`

	// MaxCached caps the cached notification list; 0 keeps everything.
	MaxCached int `mapstructure:"max_cached" yaml:"max_cached"`

	// RollbackOnFailure reverts an optimistic mark-as-read when the
	// server rejects it.
	RollbackOnFailure bool `mapstructure:"rollback_on_failure" yaml:"rollback_on_failure"`
}

// PollInterval returns the poll interval as a duration.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// FetchTimeout returns the per-cycle timeout as a duration.
func (c SyncConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// StoreConfig locates the local cache database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API   APIConfig   `mapstructure:"api" yaml:"api"`
	Sync  SyncConfig  `mapstructure:"sync" yaml:"sync"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

// envKeyReplacer maps nested keys to environment variable names.
var envKeyReplacer = strings.NewReplacer(".", "_")

// configDir returns ~/.config/alertsync, or "." when the home directory
// cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "alertsync")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/alertsync/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultStorePath returns the default cache database location.
func DefaultStorePath() string {
	return filepath.Join(configDir(), "cache.db")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8000/api",
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Sync: SyncConfig{
			PollIntervalSec: 30,
			FetchTimeoutSec: 30,
			AlertLimit:      20,
			ReadPolicy:      "merge",
			MaxCached:       200,
		},
		Store: StoreConfig{Path: DefaultStorePath()},
		Log:   LogConfig{Level: "info", Format: "console"},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
// Environment variables prefixed with ALERTSYNC_ override file values
// (e.g., ALERTSYNC_API_BASE_URL).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("alertsync")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	def := DefaultAppConfig()
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("api.max_retries", def.API.MaxRetries)
	v.SetDefault("sync.poll_interval_sec", def.Sync.PollIntervalSec)
	v.SetDefault("sync.fetch_timeout_sec", def.Sync.FetchTimeoutSec)
	v.SetDefault("sync.alert_limit", def.Sync.AlertLimit)
	v.SetDefault("sync.read_policy", def.Sync.ReadPolicy)
	v.SetDefault("sync.max_cached", def.Sync.MaxCached)
	v.SetDefault("sync.rollback_on_failure", def.Sync.RollbackOnFailure)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the controller cannot run with.
func (c *AppConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Sync.PollIntervalSec <= 0 {
		return fmt.Errorf("sync.poll_interval_sec must be positive, got %d", c.Sync.PollIntervalSec)
	}
	if c.Sync.AlertLimit <= 0 {
		return fmt.Errorf("sync.alert_limit must be positive, got %d", c.Sync.AlertLimit)
	}
	switch c.Sync.ReadPolicy {
	case "merge", "remote":
	default:
		return fmt.Errorf("sync.read_policy must be \"merge\" or \"remote\", got %q", c.Sync.ReadPolicy)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("sync", cfg.Sync)
	v.Set("store", cfg.Store)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
