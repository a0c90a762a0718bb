package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/sym"
)

var (
	configFormat    string
	configInitForce bool
)

// ConfigCmd groups the configuration subcommands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: sym.Sync + " Manage loom configuration",
	Long: `Manage loom configuration.

Configuration merges, lowest precedence first: /etc/loom/config.toml,
~/.loom/loom.toml, ~/.loom/config.toml, ~/.loom/loom_managed.toml
(written by 'config set'), a project loom.toml found by upward search,
and LOOM_* environment variables.

Examples:
  loom config show --format yaml
  loom config set supervisor.base_url http://localhost:9000
  loom config where`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Long: `Write a commented starter config file. Defaults to ~/.loom/loom.toml
when no path is given. Existing files are preserved unless --force is
set, in which case a rotating backup is taken first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist one setting to the managed config",
	Long: `Persist one setting to ~/.loom/loom_managed.toml. The managed file
sits above the user config and below project config in the cascade, so
settings survive upgrades without editing hand-written files.

Supported keys:
  supervisor.base_url
  server.log_theme
  database.path
  monitor.poll_interval_seconds

Examples:
  loom config set supervisor.base_url http://localhost:9000
  loom config set monitor.poll_interval_seconds 5`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show the config file cascade",
	RunE:  runConfigWhere,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "output format: toml, json, yaml")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file (backs it up first)")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# loom effective configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# loom effective configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	if err := config.InitFile(path, configInitForce); err != nil {
		return err
	}

	if path == "" {
		path = filepath.Join(config.UserConfigDir(), "loom.toml")
	}
	pterm.Success.Printf("Config written to %s\n", path)
	pterm.Info.Println("Edit it, then restart the daemon or let live reload pick it up")
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	var err error
	switch key {
	case "supervisor.base_url":
		err = config.UpdateSupervisorBaseURL(value)
	case "server.log_theme":
		err = config.UpdateServerLogTheme(value)
	case "database.path":
		err = config.UpdateDatabasePath(value)
	case "monitor.poll_interval_seconds":
		seconds, convErr := strconv.Atoi(value)
		if convErr != nil {
			return errors.NewInvalidRequestError("poll interval must be an integer, got %q", value)
		}
		if seconds <= 0 {
			return errors.NewInvalidRequestError("poll interval must be positive, got %d", seconds)
		}
		err = config.UpdateMonitorPollInterval(seconds)
	default:
		return errors.WithHint(
			errors.Newf("unsupported config key %q", key),
			"supported keys: supervisor.base_url, server.log_theme, database.path, monitor.poll_interval_seconds",
		)
	}
	if err != nil {
		return err
	}

	pterm.Success.Printf("Set %s = %s\n", key, value)
	pterm.Printf("  Written to %s\n", config.GetManagedConfigPath())
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	active := config.ActiveConfigFile()

	pterm.Info.Println("Config cascade (lowest precedence first):")
	for _, path := range config.CascadeFiles() {
		marker := " "
		if _, err := os.Stat(path); err == nil {
			marker = "✓"
		}
		line := fmt.Sprintf("  %s %s", marker, path)
		if path == active {
			line += "  (active, watched by daemon)"
		}
		fmt.Println(line)
	}
	pterm.Printf("  + LOOM_* environment variables (highest precedence)\n")

	if active == "" {
		pterm.Warning.Println("No config file found; running on built-in defaults")
		pterm.Info.Println("Create one with: loom config init")
	}
	return nil
}
