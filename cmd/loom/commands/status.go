package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/server"
	"github.com/teranos/loom/supervisor"
	"github.com/teranos/loom/sym"
)

var statusWatch bool

// StatusCmd reports daemon and pipeline health at a glance.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: sym.Run + " Show daemon and pipeline status",
	Long: `Show the loom daemon's health and the current pipeline state.

Queries the local daemon API. When the daemon is not running, falls back
to probing the supervisor directly so the pipeline state stays visible.

Examples:
  loom status
  loom status --watch   # follow the active run with a progress bar`,
	RunE: runStatus,
}

func init() {
	StatusCmd.Flags().BoolVar(&statusWatch, "watch", false, "follow the active run until it ends")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	client := newDaemonClient()

	var status server.StatusResponse
	if err := client.get(ctx, "/api/status", &status); err != nil {
		return statusWithoutDaemon(ctx, err)
	}

	var snapshot server.SnapshotMessage
	if err := client.get(ctx, "/api/pipeline/snapshot", &snapshot); err != nil {
		return err
	}

	pterm.Success.Printf("Daemon %s (%s)\n", status.Status, status.ServerState)
	pterm.Printf("  Version:    %s (commit %s)\n", status.Version, status.Commit)
	pterm.Printf("  Uptime:     %s\n", formatSeconds(status.UptimeSeconds))
	pterm.Printf("  Clients:    %d websocket\n", status.Clients)
	pterm.Printf("  Memory:     %.1f/%.1f GB (%.0f%%), process %.0f MB\n",
		status.System.MemoryUsedGB, status.System.MemoryTotalGB,
		status.System.MemoryPercent, status.System.ProcessRSSMB)
	pterm.Printf("  Goroutines: %d\n", status.System.Goroutines)
	pterm.Println()

	printSnapshot(snapshot)

	if statusWatch && snapshot.Running {
		pterm.Println()
		return watchRun(cmd.Context(), client, snapshot)
	}
	return nil
}

// watchRun re-polls the daemon snapshot every two seconds and renders a
// live progress bar until the active run ends or the user interrupts.
func watchRun(ctx context.Context, client *daemonClient, last server.SnapshotMessage) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	bar, err := pterm.DefaultProgressbar.WithTotal(100).WithTitle("pipeline").Start()
	if err != nil {
		return errors.Wrap(err, "failed to start progress display")
	}
	defer bar.Stop()

	applyProgress(bar, last)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		reqCtx, cancel := context.WithTimeout(ctx, daemonTimeout)
		var snapshot server.SnapshotMessage
		err := client.get(reqCtx, "/api/pipeline/snapshot", &snapshot)
		cancel()
		if err != nil {
			// Daemon hiccup; keep the last bar state and retry next tick.
			continue
		}

		applyProgress(bar, snapshot)

		if !snapshot.Running {
			bar.Stop()
			pterm.Println()
			printSnapshot(snapshot)
			return nil
		}
	}
}

func applyProgress(bar *pterm.ProgressbarPrinter, msg server.SnapshotMessage) {
	p := msg.Snapshot.Progress
	if p == nil {
		return
	}
	if pct := int(p.Percentage); pct > bar.Current {
		bar.Add(pct - bar.Current)
	}
	title := p.Phase
	if p.Detail != "" {
		title = fmt.Sprintf("%s · %s", p.Phase, truncate(p.Detail, 40))
	}
	if title != "" {
		bar.UpdateTitle(title)
	}
}

// printSnapshot renders the live run view the daemon pushes to clients.
func printSnapshot(msg server.SnapshotMessage) {
	snap := msg.Snapshot

	if msg.Running {
		pterm.Success.Printf("Pipeline running (%s elapsed)\n", formatSeconds(snap.CurrentDuration))
		if snap.Progress != nil {
			p := snap.Progress
			pterm.Printf("  Phase:      %s (%d/%d, %.0f%%)\n", p.Phase, p.Current, p.Total, p.Percentage)
			if p.SubPhase != "" && p.SubCurrent != nil && p.SubTotal != nil {
				pterm.Printf("  Sub-phase:  %s (%d/%d)\n", p.SubPhase, *p.SubCurrent, *p.SubTotal)
			}
			if p.Detail != "" {
				pterm.Printf("  Detail:     %s\n", truncate(p.Detail, 80))
			}
		}
		return
	}

	if snap.ManuallyStopped {
		pterm.Warning.Println("Pipeline idle (last run stopped manually)")
	} else {
		pterm.Info.Println("Pipeline idle")
	}
	if snap.LastRunSummary != nil {
		s := snap.LastRunSummary
		if s.Duration != nil {
			pterm.Printf("  Last run:   %s\n", formatSeconds(*s.Duration))
		}
		pterm.Printf("  Summary:    %s\n", summaryHeadline(s))
	}
}

// statusWithoutDaemon probes the supervisor directly so `loom status`
// still answers when the daemon is down.
func statusWithoutDaemon(ctx context.Context, daemonErr error) error {
	pterm.Warning.Printf("Daemon not reachable: %v\n", daemonErr)
	pterm.Info.Println("Probing supervisor directly (start the daemon with: loom monitor)")

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	status, err := supervisor.NewClient(supervisorConfig(cfg)).GetStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "supervisor unreachable")
	}

	if status.Running {
		pid := "unknown"
		if status.PID != nil {
			pid = strconv.Itoa(*status.PID)
		}
		pterm.Success.Printf("Pipeline running (PID %s)\n", pid)
	} else if status.Returncode != nil {
		pterm.Info.Printf("Pipeline idle (last exit code %d)\n", *status.Returncode)
	} else {
		pterm.Info.Println("Pipeline idle")
	}
	return nil
}
