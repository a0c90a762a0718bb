package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/logger"
	"github.com/teranos/loom/monitor"
	"github.com/teranos/loom/server"
	"github.com/teranos/loom/statestore"
	"github.com/teranos/loom/supervisor"
	"github.com/teranos/loom/sym"
)

var (
	monitorPort   int
	monitorDBPath string
)

// MonitorCmd runs the monitor daemon in the foreground.
var MonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: sym.Run + " Run the monitor daemon",
	Long: sym.Run + ` Monitor daemon - poller plus daemon API.

The daemon:
- Polls the supervisor for pipeline status and a bounded log tail
- Derives progress, phase, and termination status from log text
- Records finished runs in a bounded history
- Shares live state with other loom instances through the state database
- Serves REST and WebSocket APIs for UIs and the one-shot commands
- Reloads configuration when the active config file changes

Runs until interrupted; Ctrl+C shuts down gracefully with a final state
flush (press Ctrl+C again to force exit).

Examples:
  loom monitor                # Default port (8787)
  loom monitor --port 9000    # Explicit port`,
	RunE: runMonitor,
}

func init() {
	MonitorCmd.Flags().IntVar(&monitorPort, "port", 0, "Daemon API port (default: from config, 8787)")
	MonitorCmd.Flags().StringVar(&monitorDBPath, "db-path", "", "State database path (overrides config)")
}

// supervisorConfig maps the loaded config onto the supervisor client.
func supervisorConfig(cfg *config.Config) supervisor.Config {
	return supervisor.Config{
		BaseURL:        cfg.Supervisor.BaseURL,
		Token:          cfg.Supervisor.Token,
		AllowRemote:    cfg.Supervisor.AllowRemote,
		PollTimeout:    time.Duration(cfg.Supervisor.PollTimeoutSeconds) * time.Second,
		ControlTimeout: time.Duration(cfg.Supervisor.ControlTimeoutSeconds) * time.Second,
		Logger:         logger.Logger.Named("supervisor"),
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	defer logger.Cleanup()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	database, err := openDatabase(cfg, monitorDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	// Each monitor process writes under a unique origin so the watcher can
	// tell its own persistence from peers'.
	origin := uuid.NewString()
	store := statestore.NewStore(database, origin)
	watcher := statestore.NewWatcher(store, 0)

	controller := monitor.NewController(monitor.Config{
		Client:             supervisor.NewClient(supervisorConfig(cfg)),
		Store:              store,
		Watcher:            watcher,
		Logger:             logger.Logger.Named("monitor"),
		PollInterval:       time.Duration(cfg.Monitor.PollIntervalSeconds) * time.Second,
		PersistDebounce:    time.Duration(cfg.Monitor.PersistDebounceMS) * time.Millisecond,
		ReconcileInterval:  time.Duration(cfg.Monitor.ReconcileIntervalMinutes) * time.Minute,
		LogFetchTimeout:    time.Duration(cfg.Supervisor.LogFetchTimeoutSeconds) * time.Second,
		LogFallbackTimeout: time.Duration(cfg.Supervisor.LogFallbackTimeoutSeconds) * time.Second,
		History: monitor.HistoryOptions{
			Limit:                cfg.History.Limit,
			RetentionChars:       cfg.History.RetentionChars,
			RetentionFailedChars: cfg.History.RetentionFailedChars,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := controller.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start run monitor")
	}

	srv := server.NewServer(controller, cfg, logger.Logger.Named("server"))
	if verbosity, err := cmd.Flags().GetCount("verbose"); err == nil {
		srv.SetVerbosity(verbosity)
	}

	port := monitorPort
	if port == 0 {
		port = config.GetServerPort()
	}

	setupConfigWatcher(srv)
	printMonitorBanner(cmd, cfg, port, origin)
	logger.OpenInfow("Monitor daemon started",
		"port", port,
		"origin", origin,
		"supervisor_url", cfg.Supervisor.BaseURL,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		controller.Stop()
		return errors.Wrap(err, "daemon server failed")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			err := srv.Stop()
			controller.Stop()
			shutdownDone <- err
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			logger.CloseInfow("Monitor daemon stopped")
			pterm.Success.Println("Monitor stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// setupConfigWatcher wires live config reload for the daemon. Missing
// config files disable watching; the daemon still runs on defaults.
func setupConfigWatcher(srv *server.LoomServer) {
	configPath := config.ActiveConfigFile()
	if configPath == "" {
		logger.Logger.Infow("No config file found, using defaults (config watching disabled)")
		return
	}

	watcher, err := config.NewConfigWatcher(configPath)
	if err != nil {
		logger.Logger.Warnw("Failed to create config watcher, manual restart required for config changes",
			"error", err,
		)
		return
	}

	config.SetGlobalWatcher(watcher)

	watcher.OnReload(func(newCfg *config.Config) error {
		// Poll cadence and supervisor timeouts stay fixed for the process
		// life; origins and theme apply immediately.
		srv.ReloadConfig(newCfg)
		logger.RunInfow("Configuration reloaded",
			"supervisor_url", newCfg.Supervisor.BaseURL,
			"log_theme", newCfg.GetServerLogTheme(),
		)
		return nil
	})

	watcher.Start()
	logger.Logger.Infow("Config watcher started", "path", configPath)
}
