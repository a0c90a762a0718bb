package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/teranos/loom/logger"
)

// reloadDebounce collapses editor save bursts (write, truncate, rename
// dances) into a single reload.
const reloadDebounce = 500 * time.Millisecond

// ReloadCallback receives the freshly loaded config after a file change.
type ReloadCallback func(*Config) error

// ConfigWatcher reloads configuration when the active config file changes
// on disk. The daemon registers callbacks that push the new values into
// running components; writes loom itself makes (config set) are marked so
// they do not echo back as a reload.
type ConfigWatcher struct {
	configPath string
	watcher    *fsnotify.Watcher

	mu        sync.RWMutex
	callbacks []ReloadCallback
	pending   *time.Timer

	selfMu    sync.Mutex
	selfWrite bool
}

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher watches configPath. Start must be called to begin
// delivering reloads.
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file %s: %w", configPath, err)
	}

	return &ConfigWatcher{
		configPath: configPath,
		watcher:    watcher,
	}, nil
}

// OnReload registers a callback invoked after each successful reload.
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// MarkOwnWrite flags the next file event as loom's own write, so persisting
// a setting does not trigger a reload loop. The flag is one-shot.
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.selfMu.Lock()
	defer cw.selfMu.Unlock()
	cw.selfWrite = true
}

// checkOwnWrite consumes the own-write flag.
func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.selfMu.Lock()
	defer cw.selfMu.Unlock()

	was := cw.selfWrite
	cw.selfWrite = false
	return was
}

// Start launches the watch loop.
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if isBackupFile(event.Name) {
				continue
			}
			if cw.checkOwnWrite() {
				logger.Debugw("Config watcher ignoring own write",
					"file", event.Name)
				continue
			}

			logger.Infow("Config watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error",
				"error", err)
		}
	}
}

// scheduleReload (re)arms the debounce timer. Only the last write of a
// burst produces a reload.
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.pending = time.AfterFunc(reloadDebounce, func() {
		if err := cw.reload(); err != nil {
			logger.Errorw("Config reload failed",
				"error", err)
		}
	})
}

// reload rebuilds the cached config from disk and fans it out to the
// registered callbacks. One failing callback does not stop the rest.
func (cw *ConfigWatcher) reload() error {
	Reset()

	newConfig, err := Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Infow("Config reloaded successfully",
		"path", cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(newConfig); err != nil {
			logger.Warnw("Config reload callback error",
				"error", err)
		}
	}

	return nil
}

// Stop closes the underlying watcher, ending the watch loop.
func (cw *ConfigWatcher) Stop() error {
	return cw.watcher.Close()
}

// isBackupFile reports whether path is one of the rotating backups the
// persist layer writes next to the config (.back1, .back2, .back3).
func isBackupFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".back1") ||
		strings.HasSuffix(base, ".back2") ||
		strings.HasSuffix(base, ".back3")
}

// SetGlobalWatcher records the daemon's watcher so the persist layer can
// mark its own writes.
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the watcher registered by SetGlobalWatcher, or
// nil outside the daemon.
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
