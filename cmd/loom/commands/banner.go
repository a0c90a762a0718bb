package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/logger"
	"github.com/teranos/loom/sym"
	"github.com/teranos/loom/version"
)

// printMonitorBanner prints the user-friendly daemon startup message.
func printMonitorBanner(cmd *cobra.Command, cfg *config.Config, port int, origin string) {
	// ANSI escape codes
	cyan := "\033[36m"
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	verbosity, _ := cmd.Flags().GetCount("verbose")
	info := version.Get()

	supervisorURL := cfg.Supervisor.BaseURL
	if supervisorURL == "" {
		supervisorURL = config.DefaultSupervisorURL
	}

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ╦  ╔═╗ ╔═╗ ╔╦╗\n")
	fmt.Printf("   ║  ║ ║ ║ ║ ║║║\n")
	fmt.Printf("   ╩═╝╚═╝ ╚═╝ ╩ ╩  %s pipeline run monitor%s\n\n", sym.Run, reset)

	fmt.Printf("%s%s┌─ Monitor Info ──────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:    %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Built:      %s\n", green, reset, info.BuildTime)
	fmt.Printf("%s│%s API:        http://localhost:%d\n", green, reset, port)
	fmt.Printf("%s│%s Supervisor: %s\n", green, reset, supervisorURL)
	fmt.Printf("%s│%s Database:   %s\n", green, reset, cfg.GetDatabasePath())
	fmt.Printf("%s│%s Instance:   %s\n", green, reset, origin)
	fmt.Printf("%s│%s Verbosity:  %s\n", green, reset, logger.LevelName(verbosity))
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s✨ Connect to ws://localhost:%d/ws for live updates%s\n", yellow, bold, port, reset)
	fmt.Printf("%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}
