package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDeterminism(t *testing.T) {
	logs := []string{
		"",
		"PHASE 1: Entity Extraction\nIngesting article 3 [3/10]",
		"PIPELINE COMPLETE",
		"random noise\nwith no patterns at all",
		"PHASE 2.5: Company Enrichment\nEnriched: Acme Corp (confidence: 0.92)",
	}

	for _, log := range logs {
		first := Extract(log)
		second := Extract(log)
		assert.Equal(t, first, second, "Extract must be deterministic for %q", log)
	}
}

func TestExtractTerminalOverride(t *testing.T) {
	// A stale bracket counter must not drag a finished run back to 30%.
	log := "Ingesting article 3 [3/10]\nPIPELINE COMPLETE"

	state := Extract(log)
	require.NotNil(t, state)
	assert.Equal(t, "Complete", state.Phase)
	assert.Equal(t, 100.0, state.Percentage)
	assert.Equal(t, 100, state.Current)
	assert.Equal(t, 100, state.Total)
}

func TestExtractTerminalMarkers(t *testing.T) {
	tests := []struct {
		name     string
		log      string
		terminal bool
	}{
		{"pipeline complete", "all done\nPIPELINE COMPLETE\n", true},
		{"lowercase pipeline complete", "pipeline complete", true},
		{"next steps", "Next steps:\n  1. review the graph", true},
		{"browser hint", "Open your browser at http://localhost:8077", true},
		{"post-processing with earlier phase", "PHASE 4: Post-Processing\nPOST-PROCESSING COMPLETE", true},
		{"post-processing alone", "POST-PROCESSING COMPLETE", true},
		{"post-processing then a later phase", "POST-PROCESSING COMPLETE\nPHASE 5: Embedding Refresh", false},
		{"intermediate phase banner", "PHASE 2: Relationship Building\nphase complete, moving on", false},
		{"no markers", "Ingesting article 1 [1/10]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Extract(tt.log)
			if tt.terminal {
				require.NotNil(t, state)
				assert.Equal(t, 100.0, state.Percentage)
				assert.Equal(t, "Complete", state.Phase)
			} else if state != nil {
				assert.NotEqual(t, "Complete", state.Phase)
			}
		})
	}
}

func TestExtractPhaseHeader(t *testing.T) {
	t.Run("last header wins", func(t *testing.T) {
		log := "PHASE 1: Entity Extraction\nwork work\nPHASE 2: Relationship Building"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, "Relationship Building", state.Phase)
	})

	t.Run("trims trailing dots", func(t *testing.T) {
		state := Extract("PHASE 1: Entity Extraction...")
		require.NotNil(t, state)
		assert.Equal(t, "Entity Extraction", state.Phase)
	})

	t.Run("fractional phase numbers parse", func(t *testing.T) {
		state := Extract("PHASE 2.5: Company Enrichment\nCompanies enriched: 3/9")
		require.NotNil(t, state)
		assert.Equal(t, "Company Enrichment", state.Phase)
		assert.Equal(t, "enrichment", state.SubPhase)
	})

	t.Run("phase without counters reports zero progress", func(t *testing.T) {
		state := Extract("PHASE 3: Post-Processing")
		require.NotNil(t, state)
		assert.Equal(t, "Post-Processing", state.Phase)
		assert.Equal(t, 0, state.Current)
		assert.Equal(t, 0, state.Total)
		assert.Equal(t, 0.0, state.Percentage)
	})
}

func TestExtractCounterPrecedence(t *testing.T) {
	t.Run("ingesting beats generic bracket", func(t *testing.T) {
		// The generic bracket appears first in the window but loses.
		log := "queue depth [9/20]\nIngesting article 2 [2/5]"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, 2, state.Current)
		assert.Equal(t, 5, state.Total)
	})

	t.Run("last ingesting occurrence wins", func(t *testing.T) {
		log := "[INFO] Ingesting article 3... [3/10]\nsome work\nIngesting article 4 [4/10]"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, 4, state.Current)
		assert.Equal(t, 10, state.Total)
	})

	t.Run("relationship strength beats generic bracket", func(t *testing.T) {
		log := "batch [1/3]\nRelationship Strength scoring 5/20"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, 5, state.Current)
		assert.Equal(t, 20, state.Total)
	})

	t.Run("generic bracket beats x-of-y", func(t *testing.T) {
		log := "Processing 1 of 8\nchunk [6/12]"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, 6, state.Current)
		assert.Equal(t, 12, state.Total)
	})

	t.Run("last generic bracket wins", func(t *testing.T) {
		log := "chunk [3/10]\nchunk [7/10]"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, 7, state.Current)
	})

	t.Run("x of y matches as last resort", func(t *testing.T) {
		log := "Calculating scores 4 of 16"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, 4, state.Current)
		assert.Equal(t, 16, state.Total)
		assert.Equal(t, 25.0, state.Percentage)
	})
}

func TestExtractSubPhases(t *testing.T) {
	t.Run("phase 0 reports pages", func(t *testing.T) {
		state := Extract("PHASE 0: Crawl\nFetching page 7 of 30")
		require.NotNil(t, state)
		assert.Equal(t, "pages", state.SubPhase)
		require.NotNil(t, state.SubCurrent)
		assert.Equal(t, 7, *state.SubCurrent)
		require.NotNil(t, state.SubTotal)
		assert.Equal(t, 30, *state.SubTotal)
	})

	t.Run("phase 1 prefers entities", func(t *testing.T) {
		log := "PHASE 1: Entity Extraction\nEntities extracted: 50\nRelationships created: 120"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, "entities", state.SubPhase)
		require.NotNil(t, state.SubCurrent)
		assert.Equal(t, 50, *state.SubCurrent)
		assert.Nil(t, state.SubTotal)
		assert.Nil(t, state.SubPercentage)
	})

	t.Run("phase 2 prefers relationships", func(t *testing.T) {
		log := "PHASE 2: Relationship Building\nEntities extracted: 50\nRelationships created: 120"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, "relationships", state.SubPhase)
		require.NotNil(t, state.SubCurrent)
		assert.Equal(t, 120, *state.SubCurrent)
	})

	t.Run("enrichment carries ratio and detail", func(t *testing.T) {
		log := "PHASE 2.5: Company Enrichment\n" +
			"Companies enriched: 12/40\n" +
			"Enriched: Acme Corp (confidence: 0.92)"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, "enrichment", state.SubPhase)
		require.NotNil(t, state.SubCurrent)
		assert.Equal(t, 12, *state.SubCurrent)
		require.NotNil(t, state.SubTotal)
		assert.Equal(t, 40, *state.SubTotal)
		require.NotNil(t, state.SubPercentage)
		assert.Equal(t, 30.0, *state.SubPercentage)
		assert.Equal(t, "Acme Corp (confidence: 0.92)", state.Detail)
	})

	t.Run("enrichment recognized without a phase header", func(t *testing.T) {
		state := Extract("Enriched: Globex (confidence: 0.77)")
		require.NotNil(t, state)
		assert.Equal(t, "enrichment", state.SubPhase)
		assert.Equal(t, "Globex (confidence: 0.77)", state.Detail)
	})

	t.Run("phase 3 dedup outranks communities and embeddings", func(t *testing.T) {
		log := "PHASE 3: Graph Cleanup\n" +
			"Deduplication: 34 merged, 2 failed\n" +
			"Communities detected: 17\n" +
			"Embeddings generated 120/500"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, "dedup", state.SubPhase)
		require.NotNil(t, state.SubCurrent)
		assert.Equal(t, 34, *state.SubCurrent)
		assert.Equal(t, "34 merged, 2 failed", state.Detail)
	})

	t.Run("phase 4 communities before embeddings", func(t *testing.T) {
		log := "PHASE 4: Finalizing\nCommunities detected: 17\nEmbeddings generated 120/500"
		state := Extract(log)
		require.NotNil(t, state)
		assert.Equal(t, "communities", state.SubPhase)
		require.NotNil(t, state.SubCurrent)
		assert.Equal(t, 17, *state.SubCurrent)
	})

	t.Run("phase 4 embeddings carry sub percentage", func(t *testing.T) {
		state := Extract("PHASE 4: Finalizing\nEmbeddings generated 120/500")
		require.NotNil(t, state)
		assert.Equal(t, "embeddings", state.SubPhase)
		require.NotNil(t, state.SubPercentage)
		assert.Equal(t, 24.0, *state.SubPercentage)
	})

	t.Run("page counter ignored outside phase 0", func(t *testing.T) {
		state := Extract("PHASE 3: Graph Cleanup\nFetching page 7 of 30")
		require.NotNil(t, state)
		assert.NotEqual(t, "pages", state.SubPhase)
	})
}

func TestExtractNothingRecognizable(t *testing.T) {
	assert.Nil(t, Extract(""))
	assert.Nil(t, Extract("plain chatter\nmore chatter"))
	assert.Nil(t, Extract("[WARN] disk latency elevated"))
}

func TestExtractPercentageClamped(t *testing.T) {
	state := Extract("catching up [150/100]")
	require.NotNil(t, state)
	assert.Equal(t, 100.0, state.Percentage)
}

func TestExtractWindowBound(t *testing.T) {
	// A counter buried deeper than the window must not surface.
	var b strings.Builder
	b.WriteString("Ingesting article 9 [9/10]\n")
	for i := 0; i < ProgressWindowLines+20; i++ {
		fmt.Fprintf(&b, "chatter line %d\n", i)
	}

	assert.Nil(t, Extract(b.String()))
}
