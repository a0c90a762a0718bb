package config

import (
	"net/url"

	"github.com/teranos/loom/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "loom.db" per defaults.go
	// No validation needed here

	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.New("server.port cannot be 0 (omit for default port 8787)")
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	// Supervisor URL must parse and carry a scheme + host
	if c.Supervisor.BaseURL != "" {
		u, err := url.Parse(c.Supervisor.BaseURL)
		if err != nil {
			return errors.Wrapf(err, "supervisor.base_url %q is not a valid URL", c.Supervisor.BaseURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Newf("supervisor.base_url must use http or https, got %q", u.Scheme)
		}
		if u.Hostname() == "" {
			return errors.Newf("supervisor.base_url %q is missing a hostname", c.Supervisor.BaseURL)
		}
	}

	// Timeouts: 0 = use default, negative = invalid
	if c.Supervisor.PollTimeoutSeconds < 0 {
		return errors.Newf("supervisor.poll_timeout_seconds must be >= 0, got %d", c.Supervisor.PollTimeoutSeconds)
	}
	if c.Supervisor.ControlTimeoutSeconds < 0 {
		return errors.Newf("supervisor.control_timeout_seconds must be >= 0, got %d", c.Supervisor.ControlTimeoutSeconds)
	}
	if c.Supervisor.LogFetchTimeoutSeconds < 0 {
		return errors.Newf("supervisor.log_fetch_timeout_seconds must be >= 0, got %d", c.Supervisor.LogFetchTimeoutSeconds)
	}
	if c.Supervisor.LogFallbackTimeoutSeconds < 0 {
		return errors.Newf("supervisor.log_fallback_timeout_seconds must be >= 0, got %d", c.Supervisor.LogFallbackTimeoutSeconds)
	}

	// Monitor cadence: 0 = use default, negative = invalid
	if c.Monitor.PollIntervalSeconds < 0 {
		return errors.Newf("monitor.poll_interval_seconds must be >= 0, got %d", c.Monitor.PollIntervalSeconds)
	}
	if c.Monitor.PersistDebounceMS < 0 {
		return errors.Newf("monitor.persist_debounce_ms must be >= 0, got %d", c.Monitor.PersistDebounceMS)
	}
	if c.Monitor.ReconcileIntervalMinutes < 0 {
		return errors.Newf("monitor.reconcile_interval_minutes must be >= 0, got %d", c.Monitor.ReconcileIntervalMinutes)
	}

	// History bounds: 0 = use default (per struct docs), negative = invalid
	if c.History.Limit < 0 {
		return errors.Newf("history.limit must be >= 0, got %d", c.History.Limit)
	}
	if c.History.RetentionChars < 0 {
		return errors.Newf("history.retention_chars must be >= 0, got %d", c.History.RetentionChars)
	}
	if c.History.RetentionFailedChars < 0 {
		return errors.Newf("history.retention_failed_chars must be >= 0, got %d", c.History.RetentionFailedChars)
	}

	return nil
}
