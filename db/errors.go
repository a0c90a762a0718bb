package db

import (
	"strings"

	"github.com/teranos/loom/errors"
)

// ErrDatabaseClosed marks operations attempted on a closed database. During
// daemon shutdown the connection closes while the statestore watcher may
// still be mid-poll; callers use this to tell that apart from real failures.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err indicates a closed connection, either
// wrapping ErrDatabaseClosed or carrying the raw driver message. The string
// check covers errors the sql/sqlite layer creates itself, which cannot be
// wrapped at the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "database is closed") ||
		strings.Contains(errMsg, "sql: database is closed")
}
