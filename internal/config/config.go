// Package config provides Viper-based configuration management for podgrab
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bryan-buckman/podgrab/internal/model"
)

// Config represents the complete podgrab configuration
type Config struct {
	Download DownloadConfig `mapstructure:"download"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Mail     MailConfig     `mapstructure:"mail"`
	Serve    ServeConfig    `mapstructure:"serve"`
	Output   OutputConfig   `mapstructure:"output"`
}

// DownloadConfig controls where and how much is downloaded
type DownloadConfig struct {
	Dir       string        `mapstructure:"dir"`
	MaxPerRun int           `mapstructure:"max_per_run"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FeedConfig controls feed fetching
type FeedConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries uint64        `mapstructure:"retries"`
}

// DatabaseConfig selects the subscription store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MailConfig enables update mails when Server is set
type MailConfig struct {
	Server string `mapstructure:"server"`
	From   string `mapstructure:"from"`
}

// ServeConfig contains settings for the long-running server
type ServeConfig struct {
	Addr     string        `mapstructure:"addr"`
	Interval time.Duration `mapstructure:"interval"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

// Load reads configuration from file and environment variables
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".podgrab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/podgrab")
	}

	v.SetEnvPrefix("PODGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Download.Dir = expandHome(cfg.Download.Dir)
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = filepath.Join(cfg.Download.Dir, "PodGrab.db")
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("download.dir", "~/podcasts")
	v.SetDefault("download.max_per_run", 4)
	v.SetDefault("download.timeout", 30*time.Minute)

	v.SetDefault("feed.timeout", 60*time.Second)
	v.SetDefault("feed.retries", 3)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("mail.server", "")
	v.SetDefault("mail.from", defaultMailFrom())

	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.interval", time.Hour)

	v.SetDefault("output.colors", true)
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Download.Dir == "" {
		return fmt.Errorf("download.dir must be set")
	}
	if cfg.Download.MaxPerRun < 0 {
		return fmt.Errorf("download.max_per_run must not be negative: %d", cfg.Download.MaxPerRun)
	}

	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Log.Format] {
		return fmt.Errorf("invalid logging format: %s (must be text or json)", cfg.Log.Format)
	}

	if cfg.Serve.Interval < model.MinPollingInterval {
		cfg.Serve.Interval = model.MinPollingInterval
	}

	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[1:])
	}
	return p
}

func defaultMailFrom() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return "podgrab@" + host
}
