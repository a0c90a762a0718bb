package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/loom/internal/util"
)

// RunSummary captures what a finished run accomplished, distilled once at
// termination from the full accumulated log rather than the sliding window.
// Absent fields mean the log never reported that figure.
type RunSummary struct {
	Phase                string   `json:"phase,omitempty"`
	ArticlesProcessed    *int     `json:"articles_processed,omitempty"`
	CompaniesExtracted   *int     `json:"companies_extracted,omitempty"`
	EntitiesExtracted    *int     `json:"entities_extracted,omitempty"`
	RelationshipsCreated *int     `json:"relationships_created,omitempty"`
	CompaniesEnriched    *int     `json:"companies_enriched,omitempty"`
	NodesTotal           *int     `json:"nodes_total,omitempty"`
	RelationshipsTotal   *int     `json:"relationships_total,omitempty"`
	Errors               *int     `json:"errors,omitempty"`
	Duration             *float64 `json:"duration_seconds,omitempty"`
	BestEffort           bool     `json:"best_effort,omitempty"`
}

var (
	totalNodesPattern         = regexp.MustCompile(`(?i)\bTotal Nodes\s*:\s*(\d+)`)
	totalRelationshipsPattern = regexp.MustCompile(`(?i)\bTotal Relationships\s*:\s*(\d+)`)

	// labelCountPattern matches report lines of the form "Label: 42",
	// optionally behind a log-level tag.
	labelCountPattern = regexp.MustCompile(`(?m)^\s*(?:\[[A-Z]+\]\s*)?([A-Za-z][A-Za-z _-]*[A-Za-z])\s*:\s*(\d+)\s*$`)

	// relationshipTypeLabelPattern matches SCREAMING_SNAKE labels used in
	// per-relationship-type breakdown lines ("PARTNERS_WITH: 37").
	relationshipTypeLabelPattern = regexp.MustCompile(`^[A-Z][A-Z_]{2,}$`)

	errorTokenPattern = regexp.MustCompile(`(?i)\b(?:error|failed|exception|traceback)`)

	durationPattern = regexp.MustCompile(`(?i)\b(?:duration|completed in|elapsed)\s*:?\s*(\d+(?:\.\d+)?)\s*s(?:ec(?:onds)?)?\b`)
)

// nonRelationshipLabels are SCREAMING_SNAKE log labels that look like
// relationship types to the grammar but are not.
var nonRelationshipLabels = map[string]bool{
	"ERROR":   true,
	"ERRORS":  true,
	"WARNING": true,
	"WARN":    true,
	"INFO":    true,
	"DEBUG":   true,
	"TRACE":   true,
	"TOTAL":   true,
	"PHASE":   true,
	"NOTE":    true,
	"HTTP":    true,
}

// Summarize distills a RunSummary from the full run log. Pure and total;
// a log with no recognizable report lines yields a mostly-empty summary.
func Summarize(fullLog string) RunSummary {
	var s RunSummary

	if _, name, ok := lastPhaseHeader(fullLog); ok {
		s.Phase = name
	}

	if m := lastSubmatch(totalNodesPattern, fullLog); m != nil {
		s.NodesTotal = util.Ptr(atoi(m[1]))
	}
	if m := lastSubmatch(totalRelationshipsPattern, fullLog); m != nil {
		s.RelationshipsTotal = util.Ptr(atoi(m[1]))
	}

	// Collect "Label: count" report lines. Repeated labels keep the last
	// value, since the final report supersedes mid-run progress lines.
	labels := map[string]int{}
	relTypes := map[string]int{}
	for _, m := range labelCountPattern.FindAllStringSubmatch(fullLog, -1) {
		raw := strings.TrimSpace(m[1])
		count := atoi(m[2])
		labels[normalizeLabel(raw)] = count
		if relationshipTypeLabelPattern.MatchString(raw) && !nonRelationshipLabels[raw] {
			relTypes[raw] = count
		}
	}

	s.ArticlesProcessed = lookupLabel(labels, "articles processed", "articles ingested")
	s.CompaniesExtracted = lookupLabel(labels, "companies extracted", "companies found")
	s.EntitiesExtracted = lookupLabel(labels, "entities extracted", "entities created", "entity nodes")
	s.RelationshipsCreated = lookupLabel(labels, "relationships created")
	s.CompaniesEnriched = lookupLabel(labels, "companies enriched")

	// Without an explicit "Relationships created" line, the per-type
	// breakdown still gives the created total.
	if s.RelationshipsCreated == nil && len(relTypes) > 0 {
		sum := 0
		for _, n := range relTypes {
			sum += n
		}
		s.RelationshipsCreated = &sum
	}

	if n := len(errorTokenPattern.FindAllString(fullLog, -1)); n > 0 {
		s.Errors = &n
	}

	if m := durationPattern.FindStringSubmatch(fullLog); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.Duration = &v
		}
	}

	return s
}

// normalizeLabel folds case, underscores, and repeated spaces so report
// labels compare loosely.
func normalizeLabel(label string) string {
	lowered := strings.ToLower(strings.ReplaceAll(label, "_", " "))
	return strings.Join(strings.Fields(lowered), " ")
}

// lookupLabel returns the count for the first alias present in the label
// map, or nil when none is.
func lookupLabel(labels map[string]int, aliases ...string) *int {
	for _, alias := range aliases {
		if n, ok := labels[alias]; ok {
			return util.Ptr(n)
		}
	}
	return nil
}
