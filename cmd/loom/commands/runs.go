package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/monitor"
	"github.com/teranos/loom/pipeline"
	"github.com/teranos/loom/server"
	"github.com/teranos/loom/sym"
)

var (
	runsLimit        int
	clearRunsConfirm bool
)

// RunsCmd groups the run-history subcommands.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: sym.DB + " Inspect the run history",
	Long: `Inspect completed pipeline runs recorded by the daemon.

The daemon keeps the most recent runs with a retained log suffix per
run, shared across all loom instances on this machine.

Examples:
  loom runs ls
  loom runs show RUN_7fk3q2
  loom runs clear --confirm`,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded runs, most recent first",
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run record with its retained logs",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the run history",
	Long: `Clear the run history on every loom instance sharing this database.
Refuses to run without --confirm.`,
	RunE: runRunsClear,
}

func init() {
	runsLsCmd.Flags().IntVar(&runsLimit, "limit", 0, "show at most N runs (0 = all)")
	runsClearCmd.Flags().BoolVar(&clearRunsConfirm, "confirm", false, "confirm clearing the history")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
	RunsCmd.AddCommand(runsClearCmd)
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	var history server.HistoryMessage
	if err := newDaemonClient().get(ctx, "/api/pipeline/history", &history); err != nil {
		return err
	}

	records := history.Records
	if len(records) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}
	if runsLimit > 0 && len(records) > runsLimit {
		records = records[:runsLimit]
	}

	fmt.Printf("%-14s %-12s %-10s %-10s %s\n", "ID", "WHEN", "DURATION", "STATUS", "SUMMARY")
	for _, rec := range records {
		fmt.Printf("%-14s %-12s %-10s %-10s %s\n",
			truncate(rec.ID, 14),
			formatAge(rec.Timestamp),
			formatSeconds(rec.Duration),
			rec.Status,
			truncate(summaryHeadline(&rec.Summary), 60),
		)
	}
	fmt.Printf("\n%d run(s)\n", len(records))
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	var rec monitor.RunRecord
	path := "/api/pipeline/history/" + args[0]
	if err := newDaemonClient().get(ctx, path, &rec); err != nil {
		return err
	}

	statusPrinter := pterm.Success
	if rec.Status != pipeline.StatusCompleted {
		statusPrinter = pterm.Warning
	}
	statusPrinter.Printf("Run %s: %s\n", rec.ID, rec.Status)
	pterm.Printf("  Started:  %s (%s)\n", rec.Timestamp.Format("2006-01-02 15:04:05"), formatAge(rec.Timestamp))
	pterm.Printf("  Duration: %s\n", formatSeconds(rec.Duration))
	pterm.Printf("  Summary:  %s\n", summaryHeadline(&rec.Summary))

	if rec.Logs == "" {
		pterm.Info.Println("No logs retained for this run")
		return nil
	}
	pterm.Println()
	pterm.Info.Println("Retained logs:")
	fmt.Println(rec.Logs)
	return nil
}

func runRunsClear(cmd *cobra.Command, args []string) error {
	if !clearRunsConfirm {
		return errors.WithHint(
			errors.New("refusing to clear run history without confirmation"),
			"re-run with --confirm",
		)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	if err := newDaemonClient().post(ctx, "/api/pipeline/history/clear", nil, nil); err != nil {
		return err
	}

	pterm.Success.Println("Run history cleared")
	return nil
}
