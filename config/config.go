package config

// Config represents the core loom configuration. The marshal tags keep
// `loom config show` output in the same snake_case shape users write in
// loom.toml.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database" yaml:"database" json:"database"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" toml:"supervisor" yaml:"supervisor" json:"supervisor"`
	Monitor    MonitorConfig    `mapstructure:"monitor" toml:"monitor" yaml:"monitor" json:"monitor"`
	History    HistoryConfig    `mapstructure:"history" toml:"history" yaml:"history" json:"history"`
	Server     ServerConfig     `mapstructure:"server" toml:"server" yaml:"server" json:"server"`
}

// DatabaseConfig configures the SQLite state database shared by the daemon
// and the CLI.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
}

// SupervisorConfig configures how loom reaches the pipeline supervisor.
type SupervisorConfig struct {
	BaseURL string `mapstructure:"base_url" toml:"base_url" yaml:"base_url" json:"base_url"` // e.g. "http://localhost:8077"
	Token   string `mapstructure:"token" toml:"token" yaml:"token" json:"token"`             // optional bearer token

	// AllowRemote keeps private-IP blocking on for off-host supervisors.
	// Local supervisors (the common case) need it off.
	AllowRemote bool `mapstructure:"allow_remote" toml:"allow_remote" yaml:"allow_remote" json:"allow_remote"`

	PollTimeoutSeconds        int `mapstructure:"poll_timeout_seconds" toml:"poll_timeout_seconds" yaml:"poll_timeout_seconds" json:"poll_timeout_seconds"`                         // status/refresh requests (default: 8)
	ControlTimeoutSeconds     int `mapstructure:"control_timeout_seconds" toml:"control_timeout_seconds" yaml:"control_timeout_seconds" json:"control_timeout_seconds"`             // start/stop/clear (default: 10)
	LogFetchTimeoutSeconds    int `mapstructure:"log_fetch_timeout_seconds" toml:"log_fetch_timeout_seconds" yaml:"log_fetch_timeout_seconds" json:"log_fetch_timeout_seconds"`     // extended history fetch (default: 30)
	LogFallbackTimeoutSeconds int `mapstructure:"log_fallback_timeout_seconds" toml:"log_fallback_timeout_seconds" yaml:"log_fallback_timeout_seconds" json:"log_fallback_timeout_seconds"` // reduced fallback fetch (default: 5)
}

// MonitorConfig configures the run monitor loop.
type MonitorConfig struct {
	PollIntervalSeconds      int `mapstructure:"poll_interval_seconds" toml:"poll_interval_seconds" yaml:"poll_interval_seconds" json:"poll_interval_seconds"`                     // status poll cadence (default: 2)
	PersistDebounceMS        int `mapstructure:"persist_debounce_ms" toml:"persist_debounce_ms" yaml:"persist_debounce_ms" json:"persist_debounce_ms"`                             // state write coalescing (default: 200)
	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes" toml:"reconcile_interval_minutes" yaml:"reconcile_interval_minutes" json:"reconcile_interval_minutes"` // missed-run backfill rate (default: 5)
}

// HistoryConfig bounds the persisted run history.
// Values <= 0 default to: Limit=50, RetentionChars=10000, RetentionFailedChars=50000.
type HistoryConfig struct {
	Limit                int `mapstructure:"limit" toml:"limit" yaml:"limit" json:"limit"`                                                                 // max retained runs (default: 50)
	RetentionChars       int `mapstructure:"retention_chars" toml:"retention_chars" yaml:"retention_chars" json:"retention_chars"`                         // log suffix kept per run (default: 10000)
	RetentionFailedChars int `mapstructure:"retention_failed_chars" toml:"retention_failed_chars" yaml:"retention_failed_chars" json:"retention_failed_chars"` // log suffix kept for failed runs (default: 50000)
}

// ServerConfig configures the loom daemon API server
type ServerConfig struct {
	Port           *int     `mapstructure:"port" toml:"port,omitempty" yaml:"port,omitempty" json:"port,omitempty"` // Daemon port: nil = default 8787, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	LogTheme       string   `mapstructure:"log_theme" toml:"log_theme" yaml:"log_theme" json:"log_theme"` // Color theme: gruvbox, everforest
}

// Server port constants
const (
	DefaultServerPort = 8787 // Daemon API port (above privileged range, easy to remember)
)

// Supervisor defaults
const (
	DefaultSupervisorURL = "http://localhost:8077"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
