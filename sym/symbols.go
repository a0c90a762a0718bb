// Package sym defines canonical symbols for loom subsystem markers.
// These symbols are stable across CLI output and structured logs, so
// operators can grep a mixed stream by subsystem at a glance.
package sym

// System infrastructure symbols.
const (
	Run   = "꩜" // run monitor: polling, lifecycle, progress
	Open  = "✿" // graceful startup with snapshot recovery
	Close = "❀" // graceful shutdown with final snapshot flush
	DB    = "⊔" // database/storage layer
	Sync  = "⇆" // cross-instance state replication
	Net   = "⇄" // supervisor HTTP traffic
)

// names maps each glyph to a short identifier used in JSON log output and
// documentation.
var names = map[string]string{
	Run:   "run",
	Open:  "open",
	Close: "close",
	DB:    "db",
	Sync:  "sync",
	Net:   "net",
}

// Name returns the short identifier for a glyph, or "" when the glyph is not
// a loom symbol.
func Name(glyph string) string {
	return names[glyph]
}

// All returns every loom glyph in display order.
func All() []string {
	return []string{Run, Open, Close, DB, Sync, Net}
}
