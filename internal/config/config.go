// Package config loads planner configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"planner/internal/logger"
)

// Config is the full configuration for both the local replica and the
// remote endpoint binary.
type Config struct {
	// DataDir holds the local database, snapshot, queue and credential
	// files.
	DataDir string `mapstructure:"data_dir"`

	Sync   SyncConfig    `mapstructure:"sync"`
	Remote RemoteConfig  `mapstructure:"remote"`
	Server ServerConfig  `mapstructure:"server"`
	Log    logger.Config `mapstructure:"log"`
}

type SyncConfig struct {
	// Interval is the push timer period.
	Interval time.Duration `mapstructure:"interval"`

	// WeekStart names the weekday that begins a week bucket
	// ("sunday" or "monday"; defaults to sunday).
	WeekStart string `mapstructure:"week_start"`
}

type RemoteConfig struct {
	// BaseURL of the remote endpoint, e.g. "https://planner.example.com".
	BaseURL string `mapstructure:"base_url"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// Driver selects the repo backend: "postgres" or "sqlite".
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	JWTSecret   string `mapstructure:"jwt_secret"`
	AllowSignUp bool   `mapstructure:"allow_sign_up"`
}

// WeekStartDay converts the configured name to a weekday.
func (c SyncConfig) WeekStartDay() (time.Weekday, error) {
	switch strings.ToLower(c.WeekStart) {
	case "", "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	default:
		return 0, fmt.Errorf("unsupported week_start %q (want sunday or monday)", c.WeekStart)
	}
}

// Load reads config.yaml from path (or the default planner config dir
// when path is empty), applies environment overrides with the PLANNER_
// prefix, and fills defaults. A missing file is not an error, env and
// defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default (zero-valued if nothing better) so that
	// AutomaticEnv overrides reach Unmarshal; viper only feeds env values
	// for keys it already knows about.
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.week_start", "sunday")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.driver", "sqlite")
	v.SetDefault("server.database_url", "")
	v.SetDefault("server.sqlite_path", "")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.allow_sign_up", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 0)
	v.SetDefault("log.max_backups", 0)
	v.SetDefault("log.max_age_days", 0)
	v.SetDefault("log.compress", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDataDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := cfg.Sync.WeekStartDay(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planner"
	}
	return filepath.Join(home, ".planner")
}
