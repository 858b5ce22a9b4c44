package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL           = "http://localhost:8080/api"
	DefaultPushURL           = "ws://localhost:8080/ws"
	DefaultAPITimeout        = 10 * time.Second
	DefaultReconnectDelay    = 3 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReadLimit         = 1 << 20
	DefaultPageSize          = 10
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultArchiveBatchSize  = 100
	DefaultArchiveFlush      = 5 * time.Second
	DefaultArchiveBufferSize = 1000
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultLogLevel          = "info"
)

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *DashboardConfig {
	cfg := &DashboardConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *DashboardConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Push defaults
	if c.Push.URL == "" {
		c.Push.URL = DefaultPushURL
	}
	if c.Push.ReconnectDelay == 0 {
		c.Push.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Push.PingInterval == 0 {
		c.Push.PingInterval = DefaultPingInterval
	}
	if c.Push.PingTimeout == 0 {
		c.Push.PingTimeout = DefaultPingTimeout
	}
	if c.Push.HandshakeTimeout == 0 {
		c.Push.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Push.ReadLimit == 0 {
		c.Push.ReadLimit = DefaultReadLimit
	}

	if c.Listing.PageSize == 0 {
		c.Listing.PageSize = DefaultPageSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlush
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBufferSize
	}
	applyDBDefaults(&c.Archive.Database)

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
