package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "loom.db")

	// Supervisor defaults
	v.SetDefault("supervisor.base_url", DefaultSupervisorURL)
	v.SetDefault("supervisor.allow_remote", false)
	v.SetDefault("supervisor.poll_timeout_seconds", 8)
	v.SetDefault("supervisor.control_timeout_seconds", 10)
	v.SetDefault("supervisor.log_fetch_timeout_seconds", 30)
	v.SetDefault("supervisor.log_fallback_timeout_seconds", 5)

	// Monitor defaults
	v.SetDefault("monitor.poll_interval_seconds", 2)
	v.SetDefault("monitor.persist_debounce_ms", 200)
	v.SetDefault("monitor.reconcile_interval_minutes", 5)

	// History defaults
	v.SetDefault("history.limit", 50)
	v.SetDefault("history.retention_chars", 10000)
	v.SetDefault("history.retention_failed_chars", 50000)

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.log_theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Supervisor token never belongs in a config file on shared machines
	v.BindEnv("supervisor.token", "LOOM_SUPERVISOR_TOKEN")
	v.BindEnv("supervisor.base_url", "LOOM_SUPERVISOR_BASE_URL")

	// Database path
	v.BindEnv("database.path", "LOOM_DATABASE_PATH")
}

// GetServerPort returns the configured daemon port
// Returns server.port from config, or DefaultServerPort (8787) if not configured
func GetServerPort() int {
	cfg, err := Load()
	if err != nil || cfg.Server.Port == nil || *cfg.Server.Port == 0 {
		return DefaultServerPort
	}
	return *cfg.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "loom.db" // Fallback default
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// GetServerLogTheme returns the log theme (default: everforest)
func (c *Config) GetServerLogTheme() string {
	if c.Server.LogTheme == "" {
		return "everforest"
	}
	return c.Server.LogTheme
}

// GetHistoryConfig returns the history configuration with defaults applied
func (c *Config) GetHistoryConfig() HistoryConfig {
	cfg := c.History

	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.RetentionChars <= 0 {
		cfg.RetentionChars = 10000
	}
	if cfg.RetentionFailedChars <= 0 {
		cfg.RetentionFailedChars = 50000
	}

	return cfg
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Supervisor: %s, Server: {LogTheme: %s}}",
		c.Database.Path, c.Supervisor.BaseURL, c.Server.LogTheme)
}
