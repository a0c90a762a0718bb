// Package pipeline derives structured run state from the raw text logs of
// the knowledge-graph construction pipeline. The job exposes no structured
// progress API, so everything here is pattern matching over log text:
// Extract turns the recent window into a ProgressState, Classify decides how
// a finished run terminated, and Summarize distills a RunSummary from the
// full accumulated log.
//
// All of it is pure: no I/O, no clocks, no mutable package state. The same
// input always produces the same output.
package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/loom/internal/util"
)

// ProgressWindowLines bounds how much of the log tail Extract considers.
// Progress must reflect current activity, so counters from phases buried
// deeper in the history must not bleed into the display.
const ProgressWindowLines = 100

// ProgressState is the structured progress view derived from a log window.
// It is recomputed whole on every poll and never merged field-by-field
// across polls.
type ProgressState struct {
	Phase         string   `json:"phase"`
	Current       int      `json:"current"`
	Total         int      `json:"total"`
	Percentage    float64  `json:"percentage"`
	SubPhase      string   `json:"sub_phase,omitempty"`
	SubCurrent    *int     `json:"sub_current,omitempty"`
	SubTotal      *int     `json:"sub_total,omitempty"`
	SubPercentage *float64 `json:"sub_percentage,omitempty"`
	Detail        string   `json:"detail,omitempty"`
}

// terminalMarkers end a run conclusively. Their presence overrides every
// counter in the window, because downstream counters lag or vanish at
// completion. Matched case-insensitively.
var terminalMarkers = []string{
	"PIPELINE COMPLETE",
	"NEXT STEPS:",
	"OPEN YOUR BROWSER",
	"OPENING BROWSER",
}

// postProcessingMarker only counts as terminal when no phase header follows
// it; later phases print intermediate "... COMPLETE" banners of their own.
const postProcessingMarker = "POST-PROCESSING COMPLETE"

// phaseHeaderPattern matches "PHASE <n>: <name>" headers. Phase numbers may
// be fractional ("PHASE 2.5: Company Enrichment").
var phaseHeaderPattern = regexp.MustCompile(`(?i)PHASE\s+(\d+(?:\.\d+)?)\s*:\s*([^\r\n]+)`)

// counterRule matches a main-progress counter. Group 1 is current, group 2
// is total. lastMatch selects the most recent occurrence in the window
// instead of the first.
type counterRule struct {
	name      string
	pattern   *regexp.Regexp
	lastMatch bool
}

// counterRules resolve the main counter in strict precedence order: most
// specific first, because generic bracket counters appear inside several
// unrelated contexts.
var counterRules = []counterRule{
	{name: "ingesting-article", pattern: regexp.MustCompile(`(?i)Ingesting article[^\[\r\n]*\[(\d+)\s*/\s*(\d+)\]`), lastMatch: true},
	{name: "relationship-strength", pattern: regexp.MustCompile(`(?i)Relationship Strength[^\d\r\n]*(\d+)\s*/\s*(\d+)`)},
	{name: "generic-bracket", pattern: regexp.MustCompile(`\[(\d+)\s*/\s*(\d+)\]`), lastMatch: true},
	{name: "x-of-y", pattern: regexp.MustCompile(`(?i)\b(?:Processing|Calculating|Scoring)\b[^\d\r\n]*(\d+)\s+of\s+(\d+)`)},
}

// Sub-phase patterns, conditioned on the phase number by applySubPhase.
var (
	pagePattern              = regexp.MustCompile(`(?i)\bpage\s+(\d+)\s*(?:of|/)\s*(\d+)`)
	entityCountPattern       = regexp.MustCompile(`(?i)\bentit(?:y|ies)(?:\s+nodes?)?(?:\s+(?:created|extracted))?\s*:?\s+(\d+)`)
	relationshipCountPattern = regexp.MustCompile(`(?i)\brelationships?\s+created\s*:?\s+(\d+)`)
	enrichedCountPattern     = regexp.MustCompile(`(?i)\b(?:companies\s+)?enriched\s*:?\s+(\d+)(?:\s*/\s*(\d+))?`)
	enrichedDetailPattern    = regexp.MustCompile(`(?i)Enriched:\s*([^\r\n(]+?)\s*\(confidence:\s*([0-9.]+)\)`)
	dedupPattern             = regexp.MustCompile(`(?i)\bdedup\w*[^\d\r\n]*?(\d+)\s+merged(?:[^\d\r\n]*?(\d+)\s+failed)?`)
	communityPattern         = regexp.MustCompile(`(?i)\bcommunit(?:y|ies)[^\d\r\n]*?(\d+)`)
	embeddingPattern         = regexp.MustCompile(`(?i)\bembeddings?[^\d\r\n]*?(\d+)(?:\s*/\s*(\d+))?`)
)

// Extract derives structured progress from a log tail. It considers only the
// last ProgressWindowLines lines, is deterministic, and never panics. When
// the window holds nothing recognizable it returns nil, and the caller must
// keep its previous display state rather than blanking it.
func Extract(logTail string) *ProgressState {
	window := util.TailLines(logTail, ProgressWindowLines)

	// Terminal markers short-circuit everything else: a stale "[3/10]"
	// left in the window must not drag a finished run back to 30%.
	if hasTerminalMarker(window) {
		return &ProgressState{Phase: "Complete", Current: 100, Total: 100, Percentage: 100}
	}

	phaseNum, phaseName, phaseFound := lastPhaseHeader(window)

	state := &ProgressState{Phase: phaseName}

	counterFound := false
	for _, rule := range counterRules {
		if m := rule.find(window); m != nil {
			state.Current = atoi(m[1])
			state.Total = atoi(m[2])
			counterFound = true
			break
		}
	}

	subFound := applySubPhase(state, window, phaseNum, phaseFound)

	if !phaseFound && !counterFound && !subFound {
		return nil
	}

	state.Percentage = percent(state.Current, state.Total)
	if state.SubCurrent != nil && state.SubTotal != nil && *state.SubTotal > 0 {
		state.SubPercentage = util.Ptr(percent(*state.SubCurrent, *state.SubTotal))
	}
	return state
}

// find returns the rule's submatch in window, honoring lastMatch, or nil.
func (r counterRule) find(window string) []string {
	if r.lastMatch {
		return lastSubmatch(r.pattern, window)
	}
	return r.pattern.FindStringSubmatch(window)
}

// hasTerminalMarker reports whether text contains a conclusive
// end-of-pipeline marker.
func hasTerminalMarker(text string) bool {
	upper := strings.ToUpper(text)
	for _, marker := range terminalMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}

	ppIdx := strings.LastIndex(upper, postProcessingMarker)
	if ppIdx < 0 {
		return false
	}
	headerLocs := phaseHeaderPattern.FindAllStringIndex(text, -1)
	if len(headerLocs) == 0 {
		return true
	}
	// Terminal only when the pipeline did not move on to another phase.
	return headerLocs[len(headerLocs)-1][0] < ppIdx
}

// lastPhaseHeader returns the final "PHASE <n>: <name>" header in text.
// Phases advance monotonically, so the last header names the current phase.
func lastPhaseHeader(text string) (num float64, name string, found bool) {
	m := lastSubmatch(phaseHeaderPattern, text)
	if m == nil {
		return 0, "", false
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	name = strings.TrimRight(strings.TrimSpace(m[2]), " .")
	return num, name, true
}

// applySubPhase fills the sub-phase fields according to the detected phase.
// Only one sub-phase is reported even when several patterns match; the order
// within each phase bucket is fixed. Reports whether anything matched.
func applySubPhase(state *ProgressState, window string, phaseNum float64, phaseFound bool) bool {
	switch {
	case phaseFound && phaseNum == 0:
		if m := lastSubmatch(pagePattern, window); m != nil {
			state.SubPhase = "pages"
			state.SubCurrent = util.Ptr(atoi(m[1]))
			state.SubTotal = util.Ptr(atoi(m[2]))
			return true
		}

	case phaseFound && (phaseNum == 1 || phaseNum == 2):
		// Phase 1 extracts entities, phase 2 builds relationships; each
		// phase reports its own count first.
		ordered := []struct {
			name    string
			pattern *regexp.Regexp
		}{
			{"entities", entityCountPattern},
			{"relationships", relationshipCountPattern},
		}
		if phaseNum == 2 {
			ordered[0], ordered[1] = ordered[1], ordered[0]
		}
		for _, r := range ordered {
			if m := lastSubmatch(r.pattern, window); m != nil {
				state.SubPhase = r.name
				state.SubCurrent = util.Ptr(atoi(m[1]))
				return true
			}
		}
	}

	// Enrichment is recognized at any phase; 2.5 just makes it likely.
	if m := lastSubmatch(enrichedCountPattern, window); m != nil {
		state.SubPhase = "enrichment"
		state.SubCurrent = util.Ptr(atoi(m[1]))
		if m[2] != "" {
			state.SubTotal = util.Ptr(atoi(m[2]))
		}
		if d := lastSubmatch(enrichedDetailPattern, window); d != nil {
			state.Detail = enrichmentDetail(d)
		}
		return true
	}
	if d := lastSubmatch(enrichedDetailPattern, window); d != nil {
		state.SubPhase = "enrichment"
		state.Detail = enrichmentDetail(d)
		return true
	}

	if phaseFound && (phaseNum == 3 || phaseNum == 4) {
		if m := lastSubmatch(dedupPattern, window); m != nil {
			state.SubPhase = "dedup"
			state.SubCurrent = util.Ptr(atoi(m[1]))
			if m[2] != "" {
				state.Detail = m[1] + " merged, " + m[2] + " failed"
			}
			return true
		}
		if m := lastSubmatch(communityPattern, window); m != nil {
			state.SubPhase = "communities"
			state.SubCurrent = util.Ptr(atoi(m[1]))
			return true
		}
		if m := lastSubmatch(embeddingPattern, window); m != nil {
			state.SubPhase = "embeddings"
			state.SubCurrent = util.Ptr(atoi(m[1]))
			if m[2] != "" {
				state.SubTotal = util.Ptr(atoi(m[2]))
			}
			return true
		}
	}

	return false
}

// enrichmentDetail renders the most recent enrichment line for display.
func enrichmentDetail(m []string) string {
	return strings.TrimSpace(m[1]) + " (confidence: " + m[2] + ")"
}

// lastSubmatch returns the final submatch of pattern in text, or nil.
func lastSubmatch(pattern *regexp.Regexp, text string) []string {
	all := pattern.FindAllStringSubmatch(text, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// percent converts current/total to a [0,100] percentage; zero and negative
// totals yield zero rather than dividing.
func percent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return util.ClampFloat64(float64(current)/float64(total)*100, 0, 100)
}

// atoi parses digits already validated by a pattern group.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
