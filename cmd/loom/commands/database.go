package commands

import (
	"database/sql"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/db"
	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/logger"
)

// openDatabase opens and migrates the shared state database. An empty
// dbPath falls back to the configured path.
func openDatabase(cfg *config.Config, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}
