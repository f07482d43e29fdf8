// Package config provides configuration management for the engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Broadcast   BroadcastConfig   `mapstructure:"broadcast"`
	Connection  ConnectionConfig  `mapstructure:"connection"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig holds snapshot cache configuration.
type CacheConfig struct {
	// TTL is how long a computed view is served without recomputation.
	TTL time.Duration `mapstructure:"ttl"`
	// StaleGraceMultiple bounds how far past TTL a stale view may still
	// be served when fresh computation fails.
	StaleGraceMultiple float64 `mapstructure:"stale_grace_multiple"`
}

// BroadcastConfig holds broadcast scheduler configuration.
type BroadcastConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	ClosedInterval time.Duration `mapstructure:"closed_interval"`
	SymbolTimeout  time.Duration `mapstructure:"symbol_timeout"`
	Workers        int           `mapstructure:"workers"`
}

// ConnectionConfig holds per-client connection configuration.
type ConnectionConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	// DropPolicy is "oldest" or "newest"; oldest keeps data fresh.
	DropPolicy    string `mapstructure:"drop_policy"`
	DropThreshold int    `mapstructure:"drop_threshold"`
}

// AnalyticsConfig holds analytics engine configuration.
type AnalyticsConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path           string `mapstructure:"path"`
	JournalEnabled bool   `mapstructure:"journal_enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect API credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
	// RequestsPerSecond throttles REST calls against the Kite API.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/optionstream"
	}
	return filepath.Join(home, ".config", "optionstream")
}

// Default returns the built-in defaults, used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			TTL:                30 * time.Second,
			StaleGraceMultiple: 4,
		},
		Broadcast: BroadcastConfig{
			Interval:       10 * time.Second,
			ClosedInterval: time.Minute,
			SymbolTimeout:  5 * time.Second,
			Workers:        4,
		},
		Connection: ConnectionConfig{
			QueueSize:     64,
			DropPolicy:    "oldest",
			DropThreshold: 25,
		},
		Analytics: AnalyticsConfig{
			RiskFreeRate: 0.05,
		},
		Store: StoreConfig{
			Path:           filepath.Join(DefaultConfigDir(), "optionstream.db"),
			JournalEnabled: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    true,
		},
		Credentials: Credentials{
			Kite: KiteCredentials{RequestsPerSecond: 3},
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("OPTIONSTREAM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("OPTIONSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.StaleGraceMultiple < 1 {
		return fmt.Errorf("stale_grace_multiple must be at least 1")
	}
	if c.Broadcast.Interval <= 0 {
		return fmt.Errorf("broadcast interval must be positive")
	}
	if c.Broadcast.Workers <= 0 {
		return fmt.Errorf("broadcast workers must be positive")
	}
	if c.Connection.QueueSize <= 0 {
		return fmt.Errorf("connection queue_size must be positive")
	}
	if c.Connection.DropPolicy != "oldest" && c.Connection.DropPolicy != "newest" {
		return fmt.Errorf("invalid drop_policy: %s (must be 'oldest' or 'newest')", c.Connection.DropPolicy)
	}
	if c.Connection.DropThreshold <= 0 {
		return fmt.Errorf("connection drop_threshold must be positive")
	}
	if c.Analytics.RiskFreeRate < 0 || c.Analytics.RiskFreeRate > 1 {
		return fmt.Errorf("risk_free_rate must be between 0 and 1")
	}
	return nil
}
