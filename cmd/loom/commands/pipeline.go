package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/internal/util"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/server"
	"github.com/teranos/loom/sym"
)

var (
	startCategory        string
	startPageLimit       int
	startArticleLimit    int
	startSkipEnrichment  bool
	startSkipCommunities bool
	startSkipEmbeddings  bool
	startDebugLog        bool
	startExtraArgs       string
	startOptionsFile     string

	logsTail int

	clearLogsConfirm bool
)

// PipelineCmd groups the run-control subcommands.
var PipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: sym.Run + " Control pipeline runs",
	Long: `Control pipeline runs through the loom daemon.

Subcommands submit start/stop requests, force a status refresh, and
inspect or clear the live log view. All of them require a running
daemon (loom monitor).

Examples:
  loom pipeline start --category science
  loom pipeline stop
  loom pipeline logs --tail 50`,
}

var pipelineStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a pipeline run",
	Long: `Start a pipeline run through the daemon.

Options may come from flags, an options file, or both; flags win on
conflict. The daemon persists the submitted options, so the next start
from any instance reuses them.

Examples:
  loom pipeline start
  loom pipeline start --category science --article-limit 25
  loom pipeline start --options-file nightly.yaml --debug-log
  loom pipeline start --extra-args '--log-level debug'`,
	RunE: runPipelineStart,
}

var pipelineStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pipeline",
	Long: `Ask the supervisor to terminate the running pipeline.

Fails with a conflict when no run is in progress.`,
	RunE: runPipelineStop,
}

var pipelineRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force an immediate status poll",
	Long: `Force the daemon to poll the supervisor immediately instead of
waiting for the next scheduled poll, then print the fresh snapshot.`,
	RunE: runPipelineRefresh,
}

var pipelineLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the live pipeline logs",
	Long: `Print the daemon's live log view for the current or most recent run.

Examples:
  loom pipeline logs
  loom pipeline logs --tail 50`,
	RunE: runPipelineLogs,
}

var pipelineClearLogsCmd = &cobra.Command{
	Use:   "clear-logs",
	Short: "Clear the live log view",
	Long: `Clear the daemon's live log view. Refuses to run without --confirm.

The cleared state is sticky until the next run starts, so a poll
arriving between clears does not resurrect old output.`,
	RunE: runPipelineClearLogs,
}

// registerStartFlags binds the start flags onto cmd. Split out so tests can
// exercise the file/flag merge on a fresh command.
func registerStartFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&startCategory, "category", "", "restrict the run to one category")
	cmd.Flags().IntVar(&startPageLimit, "page-limit", 0, "maximum pages to fetch (0 = unlimited)")
	cmd.Flags().IntVar(&startArticleLimit, "article-limit", 0, "maximum articles to process (0 = unlimited)")
	cmd.Flags().BoolVar(&startSkipEnrichment, "skip-enrichment", false, "skip the enrichment phase")
	cmd.Flags().BoolVar(&startSkipCommunities, "skip-communities", false, "skip community detection")
	cmd.Flags().BoolVar(&startSkipEmbeddings, "skip-embeddings", false, "skip embedding generation")
	cmd.Flags().BoolVar(&startDebugLog, "debug-log", false, "run the pipeline with debug logging")
	cmd.Flags().StringVar(&startExtraArgs, "extra-args", "", "extra arguments passed through to the pipeline (shell-quoted)")
	cmd.Flags().StringVar(&startOptionsFile, "options-file", "", "read options from a YAML, TOML, or JSON file")
}

func init() {
	registerStartFlags(pipelineStartCmd)

	pipelineLogsCmd.Flags().IntVar(&logsTail, "tail", 0, "print only the last N lines")

	pipelineClearLogsCmd.Flags().BoolVar(&clearLogsConfirm, "confirm", false, "confirm clearing the live logs")

	PipelineCmd.AddCommand(pipelineStartCmd)
	PipelineCmd.AddCommand(pipelineStopCmd)
	PipelineCmd.AddCommand(pipelineRefreshCmd)
	PipelineCmd.AddCommand(pipelineLogsCmd)
	PipelineCmd.AddCommand(pipelineClearLogsCmd)
}

// startOptions merges the options file (when given) with explicitly set
// flags, flags winning.
func startOptions(cmd *cobra.Command) (pipeline.StartOptions, error) {
	var opts pipeline.StartOptions

	if startOptionsFile != "" {
		loaded, err := pipeline.LoadOptionsFile(startOptionsFile)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("category") {
		opts.Category = startCategory
	}
	if flags.Changed("page-limit") {
		opts.PageLimit = startPageLimit
	}
	if flags.Changed("article-limit") {
		opts.ArticleLimit = startArticleLimit
	}
	if flags.Changed("skip-enrichment") {
		opts.SkipEnrichment = startSkipEnrichment
	}
	if flags.Changed("skip-communities") {
		opts.SkipCommunities = startSkipCommunities
	}
	if flags.Changed("skip-embeddings") {
		opts.SkipEmbeddings = startSkipEmbeddings
	}
	if flags.Changed("debug-log") {
		opts.DebugLog = startDebugLog
	}
	if flags.Changed("extra-args") {
		opts.ExtraArgs = startExtraArgs
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func runPipelineStart(cmd *cobra.Command, args []string) error {
	opts, err := startOptions(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	if err := newDaemonClient().post(ctx, "/api/pipeline/start", opts, nil); err != nil {
		return err
	}

	pterm.Success.Println("Pipeline start submitted")
	if opts.Category != "" {
		pterm.Printf("  Category:      %s\n", opts.Category)
	}
	if opts.PageLimit > 0 {
		pterm.Printf("  Page limit:    %d\n", opts.PageLimit)
	}
	if opts.ArticleLimit > 0 {
		pterm.Printf("  Article limit: %d\n", opts.ArticleLimit)
	}
	if opts.ExtraArgs != "" {
		pterm.Printf("  Extra args:    %s\n", opts.ExtraArgs)
	}
	pterm.Info.Println("Follow progress with: loom status")
	return nil
}

func runPipelineStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	if err := newDaemonClient().post(ctx, "/api/pipeline/stop", nil, nil); err != nil {
		return err
	}

	pterm.Success.Println("Pipeline stop submitted")
	return nil
}

func runPipelineRefresh(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	var snapshot server.SnapshotMessage
	if err := newDaemonClient().post(ctx, "/api/pipeline/refresh", nil, &snapshot); err != nil {
		return err
	}

	printSnapshot(snapshot)
	return nil
}

func runPipelineLogs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	var snapshot server.SnapshotMessage
	if err := newDaemonClient().get(ctx, "/api/pipeline/snapshot", &snapshot); err != nil {
		return err
	}

	logs := snapshot.Snapshot.Logs
	if logs == "" {
		if snapshot.Snapshot.LogsManuallyCleared {
			pterm.Info.Println("Logs were cleared; none captured since")
		} else {
			pterm.Info.Println("No logs captured yet")
		}
		return nil
	}

	if logsTail > 0 {
		logs = util.TailLines(logs, logsTail)
	}
	fmt.Println(logs)
	return nil
}

func runPipelineClearLogs(cmd *cobra.Command, args []string) error {
	if !clearLogsConfirm {
		return errors.WithHint(
			errors.New("refusing to clear logs without confirmation"),
			"re-run with --confirm",
		)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	if err := newDaemonClient().post(ctx, "/api/pipeline/logs/clear", nil, nil); err != nil {
		return err
	}

	pterm.Success.Println("Live logs cleared")
	return nil
}
