package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/loom/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup if exists
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Log deletion failures (but don't fail config save)
		fmt.Printf("⚠️  Failed to delete old backup %s: %v\n", back3, err)
	}

	// Rotate .back2 to .back3
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	// Rotate .back1 to .back2
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	// Copy current to .back1
	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// GetManagedConfigPath returns the path to the CLI-managed config file in
// ~/.loom/loom_managed.toml. Settings changed via `loom config set` land here
// so hand-edited files are never rewritten.
func GetManagedConfigPath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "loom_managed.toml")
}

// loadOrInitializeManagedConfig loads the managed config file, or creates an empty one if it doesn't exist
func loadOrInitializeManagedConfig() (map[string]interface{}, string, error) {
	configPath := GetManagedConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	// Try to read existing config
	var config map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		// File exists, parse it
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse managed config")
		}
	} else {
		// File doesn't exist, create empty config
		config = make(map[string]interface{})
	}

	return config, configPath, nil
}

// saveManagedConfig writes the config to the managed config file with backup
func saveManagedConfig(config map[string]interface{}, configPath string) error {
	// Create backup
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	// Marshal to TOML
	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	// Write to file
	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write managed config")
	}

	return nil
}

// updateSection sets one key inside a named section of the managed config.
func updateSection(section, key string, value interface{}) error {
	config, configPath, err := loadOrInitializeManagedConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load managed config")
	}

	var sec map[string]interface{}
	if s, ok := config[section].(map[string]interface{}); ok {
		sec = s
	} else {
		sec = make(map[string]interface{})
	}

	sec[key] = value
	config[section] = sec

	return saveManagedConfig(config, configPath)
}

// UpdateSupervisorBaseURL updates the supervisor.base_url setting in managed config
func UpdateSupervisorBaseURL(baseURL string) error {
	return updateSection("supervisor", "base_url", baseURL)
}

// UpdateServerLogTheme updates the server.log_theme setting in managed config
func UpdateServerLogTheme(theme string) error {
	return updateSection("server", "log_theme", theme)
}

// UpdateDatabasePath updates the database.path setting in managed config
func UpdateDatabasePath(path string) error {
	return updateSection("database", "path", path)
}

// UpdateMonitorPollInterval updates the monitor.poll_interval_seconds setting in managed config
func UpdateMonitorPollInterval(seconds int) error {
	return updateSection("monitor", "poll_interval_seconds", seconds)
}
