package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/loom/cmd/loom/commands"
	"github.com/teranos/loom/logger"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "loom - pipeline run monitor",
	Long: `loom - run monitor for the knowledge-graph construction pipeline.

loom watches a pipeline executed elsewhere, through its supervisor's REST
facade: it polls status and logs, derives progress and termination status
from log text, keeps a bounded run history, and shares live state with
other loom instances through a common SQLite database.

Available commands:
  monitor  - Run the monitor daemon (poller + HTTP/WebSocket API)
  status   - Show daemon and pipeline status
  pipeline - Start, stop, and inspect the monitored pipeline
  runs     - Browse the recorded run history
  config   - Show or initialize configuration
  version  - Show build info and supervisor compatibility

Examples:
  loom monitor                          # Run the daemon in the foreground
  loom status                           # One-shot status view
  loom pipeline start --category tech   # Start a run through the daemon
  loom runs ls --limit 10               # Recent run history`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.MonitorCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.PipelineCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
