// Package config loads the dispatcher service configuration from a TOML
// file via viper, with environment variable overrides for deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/dispatchr/internal/logger"
)

// Environment overrides applied after the file is read.
const (
	EnvStoreDSN   = "DISPATCHR_STORE_DSN"
	EnvSourcesDSN = "DISPATCHR_SOURCES_DSN"
	EnvListen     = "DISPATCHR_HTTP_LISTEN"
)

// Config is the top-level TOML structure.
type Config struct {
	Listen           string        `toml:"listen" mapstructure:"listen"`
	BasePath         string        `toml:"base_path" mapstructure:"base_path"`
	StoreDSN         string        `toml:"store_dsn" mapstructure:"store_dsn"`
	SourcesDSN       string        `toml:"sources_dsn" mapstructure:"sources_dsn"`
	ScheduleInterval time.Duration `toml:"schedule_interval" mapstructure:"schedule_interval"`
	Timezone         string        `toml:"timezone" mapstructure:"timezone"`
	MetricsListen    string        `toml:"metrics_listen" mapstructure:"metrics_listen"`
	Log              logger.Config `toml:"log" mapstructure:"log"`
	History          HistoryConfig `toml:"history" mapstructure:"history"`
}

// HistoryConfig configures the optional event history sinks. DSN enables the
// SQL sink; ClickHouseAddr enables the ClickHouse sink. Both may be set.
type HistoryConfig struct {
	Enabled         bool   `toml:"enabled" mapstructure:"enabled"`
	DSN             string `toml:"dsn" mapstructure:"dsn"`
	ClickHouseAddr  string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	ClickHouseTable string `toml:"clickhouse_table" mapstructure:"clickhouse_table"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:           ":8081",
		BasePath:         "/api",
		StoreDSN:         "registry.db",
		ScheduleInterval: time.Minute,
		Timezone:         "Europe/Berlin",
		History:          HistoryConfig{ClickHouseTable: "dispatch_history"},
	}
}

// Load reads a TOML config file, fills defaults for missing keys and applies
// environment overrides. An empty path yields Default() plus env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		v.SetDefault("listen", cfg.Listen)
		v.SetDefault("base_path", cfg.BasePath)
		v.SetDefault("store_dsn", cfg.StoreDSN)
		v.SetDefault("schedule_interval", cfg.ScheduleInterval)
		v.SetDefault("timezone", cfg.Timezone)
		v.SetDefault("history.clickhouse_table", cfg.History.ClickHouseTable)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvStoreDSN); v != "" {
		cfg.StoreDSN = v
	}
	if v := os.Getenv(EnvSourcesDSN); v != "" {
		cfg.SourcesDSN = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
}

func (c Config) validate() error {
	if c.StoreDSN == "" {
		return fmt.Errorf("config: store_dsn is required")
	}
	if c.ScheduleInterval <= 0 {
		return fmt.Errorf("config: schedule_interval must be positive")
	}
	if c.History.Enabled && c.History.DSN == "" && c.History.ClickHouseAddr == "" {
		return fmt.Errorf("config: history enabled but no dsn or clickhouse_addr set")
	}
	return nil
}
