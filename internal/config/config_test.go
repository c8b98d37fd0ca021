package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatchr.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8081" || cfg.BasePath != "/api" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ScheduleInterval != time.Minute {
		t.Fatalf("unexpected interval: %v", cfg.ScheduleInterval)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected timezone: %s", cfg.Timezone)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen = ":9000"
base_path = "/registry"
store_dsn = "postgres://u:p@localhost/reg"
sources_dsn = "postgres://u:p@localhost/sources"
schedule_interval = "30s"
timezone = "UTC"

[log]
level = "debug"
file = "/var/log/dispatchr.log"
max_size_mb = 5

[history]
enabled = true
dsn = "history.db"
clickhouse_addr = "localhost:9000"
clickhouse_table = "events"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.BasePath != "/registry" {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
	if cfg.StoreDSN != "postgres://u:p@localhost/reg" {
		t.Fatalf("unexpected store dsn: %s", cfg.StoreDSN)
	}
	if cfg.ScheduleInterval != 30*time.Second {
		t.Fatalf("unexpected interval: %v", cfg.ScheduleInterval)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != "/var/log/dispatchr.log" || cfg.Log.MaxSizeMB != 5 {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if !cfg.History.Enabled || cfg.History.DSN != "history.db" || cfg.History.ClickHouseTable != "events" {
		t.Fatalf("unexpected history config: %+v", cfg.History)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `store_dsn = "from-file.db"`)
	t.Setenv(EnvStoreDSN, "postgres://override/reg")
	t.Setenv(EnvListen, ":7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDSN != "postgres://override/reg" {
		t.Fatalf("env override lost: %s", cfg.StoreDSN)
	}
	if cfg.Listen != ":7777" {
		t.Fatalf("listen override lost: %s", cfg.Listen)
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, `schedule_interval = "-5s"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for negative interval")
	}
}

func TestLoadRejectsHistoryWithoutTarget(t *testing.T) {
	path := writeConfig(t, `
[history]
enabled = true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for history without targets")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
