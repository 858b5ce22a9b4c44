package config

import (
	"fmt"
	"log/slog"
	"time"
)

// DashboardConfig is the root configuration for a dashboard client.
type DashboardConfig struct {
	API     APIConfig     `yaml:"api"`
	Push    PushConfig    `yaml:"push"`
	Listing ListingConfig `yaml:"listing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Archive ArchiveConfig `yaml:"archive"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig holds REST backend settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"` // e.g. http://localhost:8080/api
	Timeout time.Duration `yaml:"timeout"`
}

// PushConfig holds push channel settings.
type PushConfig struct {
	URL               string        `yaml:"url"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"` // 0 = fixed delay
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`  // <= 1 = fixed delay
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	ReadLimit         int64         `yaml:"read_limit"`
	AllowOutOfOrder   bool          `yaml:"allow_out_of_order"`
}

// ListingConfig holds list query settings.
type ListingConfig struct {
	PageSize int `yaml:"page_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ArchiveConfig holds the analytics snapshot archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
