package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/teranos/loom/pipeline"
)

// formatSeconds renders a duration in seconds as a compact human string,
// e.g. "4m21s" or "1h07m".
func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

// formatAge renders how long ago t happened, e.g. "3m ago" or "2d ago".
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// summaryHeadline condenses a run summary's counters into one line.
func summaryHeadline(s *pipeline.RunSummary) string {
	if s == nil {
		return ""
	}
	var parts []string
	if s.ArticlesProcessed != nil {
		parts = append(parts, fmt.Sprintf("%d articles", *s.ArticlesProcessed))
	}
	if s.EntitiesExtracted != nil {
		parts = append(parts, fmt.Sprintf("%d entities", *s.EntitiesExtracted))
	}
	if s.NodesTotal != nil {
		parts = append(parts, fmt.Sprintf("%d nodes", *s.NodesTotal))
	}
	if s.RelationshipsTotal != nil {
		parts = append(parts, fmt.Sprintf("%d rels", *s.RelationshipsTotal))
	}
	if s.Errors != nil && *s.Errors > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", *s.Errors))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// truncate shortens s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
