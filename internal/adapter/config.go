package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mmcdole/portal/internal/api"
	"github.com/mmcdole/portal/internal/store"
)

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	UI      UIConfig      `mapstructure:"ui" yaml:"ui"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig holds catalog API configuration
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second, 0 = unlimited
	Burst     int           `mapstructure:"burst" yaml:"burst"`
}

// CacheConfig holds local store configuration
type CacheConfig struct {
	Driver  string        `mapstructure:"driver" yaml:"driver"`   // "bolt", "sqlite" or "memory"
	Dir     string        `mapstructure:"dir" yaml:"dir"`         // Base directory, per-server subdirectories below
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"` // Freshness window of a cached partition
}

// UIConfig holds UI configuration
type UIConfig struct {
	PrefetchDistance int `mapstructure:"prefetch_distance" yaml:"prefetch_distance"` // Rows from the end that trigger the next page
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file" yaml:"file"` // "-" logs to stderr
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig holds Prometheus exporter configuration
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // Listen address for /metrics, empty disables
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   api.DefaultBaseURL,
			Timeout:   15 * time.Second,
			RateLimit: 5,
			Burst:     2,
		},
		Cache: CacheConfig{
			Driver:  store.DriverBolt,
			Dir:     defaultCachePath(),
			Timeout: time.Hour,
		},
		UI: UIConfig{
			PrefetchDistance: 5,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// StoreOptions returns the cache backend options the config selects
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:  c.Cache.Driver,
		Dir:     ExpandHome(c.Cache.Dir),
		BaseURL: c.API.BaseURL,
	}
}

// APIOptions returns the HTTP client options the config selects
func (c *Config) APIOptions() api.Options {
	return api.Options{
		Timeout:   c.API.Timeout,
		RateLimit: c.API.RateLimit,
		Burst:     c.API.Burst,
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "portal", "portal.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "portal", "portal.log")
	}
}

// DefaultConfigDir returns the default config directory for the current OS
func DefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "portal")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "portal")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "portal", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "portal", "cache")
	}
}

// newViper returns a viper instance with defaults and PORTAL_* env overrides
func newViper(defaults *Config) *viper.Viper {
	v := viper.New()

	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.timeout", defaults.API.Timeout)
	v.SetDefault("api.rate_limit", defaults.API.RateLimit)
	v.SetDefault("api.burst", defaults.API.Burst)
	v.SetDefault("cache.driver", defaults.Cache.Driver)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("cache.timeout", defaults.Cache.Timeout)
	v.SetDefault("ui.prefetch_distance", defaults.UI.PrefetchDistance)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)

	// Environment variable overrides, e.g. PORTAL_API_BASE_URL
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from file and environment.
// An empty configFile searches the default config directory and ".".
func LoadConfig(configFile string) (*Config, error) {
	v := newViper(DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML to configFile (default location when empty)
func SaveConfig(cfg *Config, configFile string) error {
	if configFile == "" {
		configFile = filepath.Join(DefaultConfigDir(), "config.yaml")
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.rate_limit", cfg.API.RateLimit)
	v.Set("api.burst", cfg.API.Burst)
	v.Set("cache.driver", cfg.Cache.Driver)
	v.Set("cache.dir", cfg.Cache.Dir)
	v.Set("cache.timeout", cfg.Cache.Timeout.String())
	v.Set("ui.prefetch_distance", cfg.UI.PrefetchDistance)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("metrics.addr", cfg.Metrics.Addr)

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
