package db

import (
	"database/sql"
	"embed"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/sym"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

// Migrate applies any pending migrations to the shared state database.
// Every loom process (the daemon and one-shot CLI commands alike) runs this
// on open, so both the DDL and the bookkeeping must tolerate a concurrent
// process racing through the same versions.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	files, err := migrationFiles()
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range files {
		version := strings.Split(filename, "_")[0]

		done, err := isApplied(db, version)
		if err != nil {
			// The bookkeeping table is created by migration 000 itself,
			// so only that version may find it missing.
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if done {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)",
					"migration", filename,
					"version", version,
				)
			}
			continue
		}

		if logger != nil {
			logger.Infow("Applying migration",
				"symbol", sym.DB,
				"migration", filename,
				"version", version,
			)
		}
		if err := apply(db, filename, version); err != nil {
			return err
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"symbol", sym.DB,
			"applied", applied,
			"total_migrations", len(files),
		)
	}

	return nil
}

// migrationFiles lists the bundled migrations in version order.
// 000_create_schema_migrations.sql sorts first and bootstraps the
// bookkeeping table the rest depend on.
func migrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir("sqlite/migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// isApplied checks the bookkeeping table for version.
func isApplied(db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
	return exists, err
}

// apply executes one migration and records it, atomically.
func apply(db *sql.DB, filename, version string) error {
	sqlBytes, err := migrations.ReadFile(filepath.Join("sqlite/migrations", filename))
	if err != nil {
		return errors.Wrapf(err, "read %s", filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", filename)
	}

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", filename)
	}

	// OR IGNORE: a second loom process may have recorded this version
	// between our isApplied check and here. The DDL is IF NOT EXISTS
	// throughout, so re-execution above was a no-op in that case.
	if _, err := tx.Exec("INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", filename)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", filename)
	}
	return nil
}
