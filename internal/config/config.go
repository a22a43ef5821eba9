package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Version is injected at build time via ldflags.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	FailedSnatch    FailedSnatchConfig    `mapstructure:"failed_snatch"`
	NameCache       NameCacheConfig       `mapstructure:"namecache"`
	SceneExceptions SceneExceptionsConfig `mapstructure:"scene_exceptions"`
	BTN             BTNConfig             `mapstructure:"btn"`
	Schedule        ScheduleConfig        `mapstructure:"schedule"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path      string `mapstructure:"path"`
	CachePath string `mapstructure:"cache_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// FailedSnatchConfig controls the failed snatch search.
type FailedSnatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// AgeHours is the minimum age of a snatch before it is considered stuck.
	AgeHours    int           `mapstructure:"age_hours"`
	IntervalMin int           `mapstructure:"interval_min"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// NameCacheConfig controls the scene name cache.
type NameCacheConfig struct {
	Backend  string        `mapstructure:"backend"` // "sqlite" or "bolt"
	BoltPath string        `mapstructure:"bolt_path"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// SceneExceptionsConfig controls retrieval of scene exceptions.
type SceneExceptionsConfig struct {
	URL             string        `mapstructure:"url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"` // wait after a failed fetch
	CustomFile      string        `mapstructure:"custom_file"`   // YAML list of user exceptions
}

// BTNConfig holds BroadcasTheNet provider settings.
type BTNConfig struct {
	APIKey string `mapstructure:"api_key"`
	URL    string `mapstructure:"url"`
}

// ScheduleConfig holds cron expressions for background tasks.
type ScheduleConfig struct {
	NameCacheRebuild string `mapstructure:"namecache_rebuild"`
	HistoryTrim      string `mapstructure:"history_trim"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8181,
		},
		Database: DatabaseConfig{
			Path:      "./data/sceneward.db",
			CachePath: "./data/cache.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		FailedSnatch: FailedSnatchConfig{
			Enabled:     false,
			AgeHours:    1,
			IntervalMin: 60,
			Timeout:     30 * time.Minute,
		},
		NameCache: NameCacheConfig{
			Backend:  "sqlite",
			BoltPath: "./data/names.bolt",
			Cooldown: 10 * time.Minute,
		},
		SceneExceptions: SceneExceptionsConfig{
			RefreshInterval: 24 * time.Hour,
			Timeout:         30 * time.Second,
			RetryBackoff:    15 * time.Minute,
		},
		BTN: BTNConfig{
			URL: "https://api.broadcasthe.net",
		},
		Schedule: ScheduleConfig{
			NameCacheRebuild: "0 3 * * *",
			HistoryTrim:      "0 2 * * *",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.sceneward")
	}

	v.SetEnvPrefix("SCENEWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults mirrors Default so that environment-only keys are picked up by AutomaticEnv.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.cache_path", d.Database.CachePath)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("failed_snatch.enabled", d.FailedSnatch.Enabled)
	v.SetDefault("failed_snatch.age_hours", d.FailedSnatch.AgeHours)
	v.SetDefault("failed_snatch.interval_min", d.FailedSnatch.IntervalMin)
	v.SetDefault("failed_snatch.timeout", d.FailedSnatch.Timeout)

	v.SetDefault("namecache.backend", d.NameCache.Backend)
	v.SetDefault("namecache.bolt_path", d.NameCache.BoltPath)
	v.SetDefault("namecache.cooldown", d.NameCache.Cooldown)

	v.SetDefault("scene_exceptions.url", d.SceneExceptions.URL)
	v.SetDefault("scene_exceptions.refresh_interval", d.SceneExceptions.RefreshInterval)
	v.SetDefault("scene_exceptions.retry_backoff", d.SceneExceptions.RetryBackoff)
	v.SetDefault("scene_exceptions.timeout", d.SceneExceptions.Timeout)
	v.SetDefault("scene_exceptions.custom_file", d.SceneExceptions.CustomFile)

	v.SetDefault("btn.api_key", d.BTN.APIKey)
	v.SetDefault("btn.url", d.BTN.URL)

	v.SetDefault("schedule.namecache_rebuild", d.Schedule.NameCacheRebuild)
	v.SetDefault("schedule.history_trim", d.Schedule.HistoryTrim)
}

// Validate checks value ranges and cron expressions.
func (c *Config) Validate() error {
	var errs []error

	if c.FailedSnatch.AgeHours < 0 || c.FailedSnatch.AgeHours > 24 {
		errs = append(errs, fmt.Errorf("failed_snatch.age_hours must be between 0 and 24, got %d", c.FailedSnatch.AgeHours))
	}
	if c.FailedSnatch.IntervalMin <= 0 {
		errs = append(errs, fmt.Errorf("failed_snatch.interval_min must be positive, got %d", c.FailedSnatch.IntervalMin))
	}
	if c.FailedSnatch.Timeout <= 0 {
		errs = append(errs, errors.New("failed_snatch.timeout must be positive"))
	}

	switch c.NameCache.Backend {
	case "sqlite", "bolt":
	default:
		errs = append(errs, fmt.Errorf("namecache.backend must be \"sqlite\" or \"bolt\", got %q", c.NameCache.Backend))
	}
	if c.NameCache.Cooldown < 0 {
		errs = append(errs, errors.New("namecache.cooldown must not be negative"))
	}

	for key, expr := range map[string]string{
		"schedule.namecache_rebuild": c.Schedule.NameCacheRebuild,
		"schedule.history_trim":      c.Schedule.HistoryTrim,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid cron expression %q: %w", key, expr, err))
		}
	}

	return errors.Join(errs...)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DataDir returns the directory holding the main database.
func (c *DatabaseConfig) DataDir() string {
	return filepath.Dir(c.Path)
}

// FailedSnatchSettings returns the failed snatch section.
func (c *Config) FailedSnatchSettings() FailedSnatchConfig {
	return c.FailedSnatch
}
