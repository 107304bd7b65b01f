package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "team_table.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Storage.BusyTimeout() != 5*time.Second {
		t.Errorf("busy timeout = %v", cfg.Storage.BusyTimeout())
	}
	if cfg.Server.Transport != "stdio" {
		t.Errorf("server.transport = %q", cfg.Server.Transport)
	}
	if cfg.RateLimit.Limit != 30 || cfg.RateLimit.Window() != time.Minute {
		t.Errorf("ratelimit = %+v", cfg.RateLimit)
	}
	if cfg.Notify.Backend != "queue" || cfg.Notify.QueueSize != 100 {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.Notify.HeartbeatInterval() != 15*time.Second {
		t.Errorf("heartbeat interval = %v", cfg.Notify.HeartbeatInterval())
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Telemetry.Enabled || cfg.Telemetry.Exporter != "stdout" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Poll.Interval() != 30*time.Second || cfg.Poll.MaxReplies != 13 {
		t.Errorf("poll = %+v", cfg.Poll)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  path: /var/lib/teamtable/table.db
  busy_timeout_ms: 10000
server:
  transport: http
  listen: ":9090"
log:
  level: debug
  format: json
telemetry:
  enabled: true
  exporter: otlp
  otlp_endpoint: collector:4317
  otlp_insecure: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "/var/lib/teamtable/table.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Storage.BusyTimeout() != 10*time.Second {
		t.Errorf("busy timeout = %v", cfg.Storage.BusyTimeout())
	}
	if cfg.Server.Transport != "http" || cfg.Server.Listen != ":9090" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.OTLPEndpoint != "collector:4317" || !cfg.Telemetry.OTLPInsecure {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	// Untouched sections keep their defaults.
	if cfg.RateLimit.Limit != 30 {
		t.Errorf("ratelimit.limit = %d", cfg.RateLimit.Limit)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TEAMTABLE_STORAGE_PATH", "/tmp/env.db")
	t.Setenv("TEAMTABLE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "/tmp/env.db" {
		t.Errorf("env override missed: storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env override missed: log.level = %q", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
