// Package config loads team-table configuration from defaults, an optional
// YAML file, and TEAMTABLE_-prefixed environment variables, in that order.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Server    ServerConfig    `koanf:"server"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Notify    NotifyConfig    `koanf:"notify"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Poll      PollConfig      `koanf:"poll"`
}

type StorageConfig struct {
	Path          string `koanf:"path"`
	BusyTimeoutMS int    `koanf:"busy_timeout_ms"`
}

// BusyTimeout returns the SQLite busy timeout as a duration.
func (c StorageConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

type ServerConfig struct {
	Transport string `koanf:"transport"` // stdio, http
	Listen    string `koanf:"listen"`
}

type RateLimitConfig struct {
	WindowSeconds int `koanf:"window_seconds"`
	Limit         int `koanf:"limit"`
}

// Window returns the sliding window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type NotifyConfig struct {
	Backend                  string `koanf:"backend"` // queue, noop
	QueueSize                int    `koanf:"queue_size"`
	HeartbeatIntervalSeconds int    `koanf:"heartbeat_interval_seconds"`
}

// HeartbeatInterval returns the stream idle heartbeat period.
func (c NotifyConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type PollConfig struct {
	IntervalSeconds int `koanf:"interval_seconds"`
	MaxReplies      int `koanf:"max_replies"`
}

// Interval returns the poll period.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("storage.path", "team_table.db")
	k.Set("storage.busy_timeout_ms", 5000)
	k.Set("server.transport", "stdio")
	k.Set("server.listen", ":8080")
	k.Set("ratelimit.window_seconds", 60)
	k.Set("ratelimit.limit", 30)
	k.Set("notify.backend", "queue")
	k.Set("notify.queue_size", 100)
	k.Set("notify.heartbeat_interval_seconds", 15)
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("poll.interval_seconds", 30)
	k.Set("poll.max_replies", 13)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (TEAMTABLE_STORAGE_PATH -> storage.path)
	if err := k.Load(env.Provider("TEAMTABLE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TEAMTABLE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
