package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *DashboardConfig) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must be >= 0")
	}

	if err := validateURL("push.url", c.Push.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Push.ReconnectDelay <= 0 {
		return errors.New("push.reconnect_delay must be > 0")
	}
	if c.Push.ReconnectMaxDelay != 0 && c.Push.ReconnectMaxDelay < c.Push.ReconnectDelay {
		return fmt.Errorf("push.reconnect_max_delay (%s) cannot be less than push.reconnect_delay (%s)",
			c.Push.ReconnectMaxDelay, c.Push.ReconnectDelay)
	}
	if c.Push.BackoffMultiplier < 0 {
		return errors.New("push.backoff_multiplier must be >= 0")
	}
	if c.Push.ReadLimit < 0 {
		return errors.New("push.read_limit must be >= 0")
	}

	if c.Listing.PageSize < 1 {
		return errors.New("listing.page_size must be >= 1")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if c.Archive.Enabled {
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
	}

	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %v, got %q", key, schemes, u.Scheme)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
