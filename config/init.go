package config

import (
	"os"
	"path/filepath"

	"github.com/teranos/loom/errors"
)

// DefaultTOML is the starter configuration written by `loom config init`.
// Every value shown matches the built-in default.
const DefaultTOML = `# loom configuration
# Precedence: /etc/loom/config.toml < ~/.loom/loom.toml < ./loom.toml < LOOM_* env vars

[database]
path = "loom.db"

[supervisor]
base_url = "http://localhost:8077"
# token = ""                      # or LOOM_SUPERVISOR_TOKEN
allow_remote = false              # keep private-IP blocking for off-host supervisors
poll_timeout_seconds = 8
control_timeout_seconds = 10
log_fetch_timeout_seconds = 30
log_fallback_timeout_seconds = 5

[monitor]
poll_interval_seconds = 2
persist_debounce_ms = 200
reconcile_interval_minutes = 5

[history]
limit = 50
retention_chars = 10000
retention_failed_chars = 50000

[server]
port = 8787
log_theme = "everforest"          # gruvbox, everforest
`

// InitFile writes the starter configuration to path. Existing files are left
// alone unless force is set, in which case a rotating backup is taken first.
func InitFile(path string, force bool) error {
	if path == "" {
		dir := UserConfigDir()
		if dir == "" {
			return errors.New("could not determine home directory")
		}
		path = filepath.Join(dir, "loom.toml")
	}

	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to back up existing config")
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory for %s", path)
	}

	if err := os.WriteFile(path, []byte(DefaultTOML), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}

	return nil
}
