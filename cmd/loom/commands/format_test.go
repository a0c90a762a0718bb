package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/loom/internal/util"
	"github.com/teranos/loom/pipeline"
)

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "5.0s", formatSeconds(5))
	assert.Equal(t, "42.3s", formatSeconds(42.3))
	assert.Equal(t, "1m23s", formatSeconds(83))
	assert.Equal(t, "7m05s", formatSeconds(425))
	assert.Equal(t, "1h01m", formatSeconds(3700))
}

func TestFormatAge(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatAge(now.Add(-30*time.Second)))
	assert.Equal(t, "5m ago", formatAge(now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", formatAge(now.Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", formatAge(now.Add(-50*time.Hour)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exact", truncate("exact", 5))
	assert.Equal(t, "long…", truncate("longer than that", 5))
}

func TestSummaryHeadline(t *testing.T) {
	assert.Equal(t, "", summaryHeadline(nil))
	assert.Equal(t, "-", summaryHeadline(&pipeline.RunSummary{}))

	s := &pipeline.RunSummary{
		ArticlesProcessed:  util.Ptr(42),
		NodesTotal:         util.Ptr(1200),
		RelationshipsTotal: util.Ptr(87),
		Errors:             util.Ptr(0),
	}
	assert.Equal(t, "42 articles, 1200 nodes, 87 rels", summaryHeadline(s))

	s.Errors = util.Ptr(3)
	assert.Equal(t, "42 articles, 1200 nodes, 87 rels, 3 errors", summaryHeadline(s))
}
