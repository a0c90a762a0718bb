package statestore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/loom/errors"
)

// Store persists shared key/value state in SQLite. Every write is tagged
// with the owning process's origin ID and a monotonic revision drawn from
// the kv_revision counter, so watchers can order changes and skip their own.
type Store struct {
	db     *sql.DB
	origin string
}

// Entry is one stored key/value pair.
type Entry struct {
	Key       string
	Value     string
	Origin    string
	Revision  int64
	UpdatedAt time.Time
}

// NewStore creates a state store writing under the given origin ID.
func NewStore(db *sql.DB, origin string) *Store {
	return &Store{db: db, origin: origin}
}

// Origin returns the origin ID tagged onto this store's writes.
func (s *Store) Origin() string {
	return s.origin
}

// Get retrieves the entry for key. Missing keys wrap errors.ErrNotFound.
func (s *Store) Get(key string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRow(`
		SELECT key, value, origin, revision, updated_at
		FROM kv_store WHERE key = ?
	`, key).Scan(&e.Key, &e.Value, &e.Origin, &e.Revision, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "state key %q", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read state key %q", key)
	}
	return &e, nil
}

// Set writes value under key and returns the revision assigned to the write.
// The revision bump and the upsert commit atomically.
func (s *Store) Set(key, value string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin state write")
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE kv_revision SET n = n + 1 WHERE id = 1"); err != nil {
		return 0, errors.Wrap(err, "failed to bump revision")
	}

	var rev int64
	if err := tx.QueryRow("SELECT n FROM kv_revision WHERE id = 1").Scan(&rev); err != nil {
		return 0, errors.Wrap(err, "failed to read revision")
	}

	_, err = tx.Exec(`
		INSERT INTO kv_store (key, value, origin, revision, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			origin     = excluded.origin,
			revision   = excluded.revision,
			updated_at = CURRENT_TIMESTAMP
	`, key, value, s.origin, rev)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to write state key %q", key)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit state write")
	}

	return rev, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv_store WHERE key = ?", key); err != nil {
		return errors.Wrapf(err, "failed to delete state key %q", key)
	}
	return nil
}

// List returns all entries whose key starts with prefix, ordered by key.
// An empty prefix lists everything.
func (s *Store) List(prefix string) ([]*Entry, error) {
	rows, err := s.db.Query(`
		SELECT key, value, origin, revision, updated_at
		FROM kv_store WHERE key LIKE ? || '%' ORDER BY key
	`, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list state keys")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Origin, &e.Revision, &e.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan state entry")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ChangedSince returns entries written after the given revision, oldest
// first. Callers advance their cursor to the highest revision returned.
func (s *Store) ChangedSince(rev int64) ([]*Entry, error) {
	rows, err := s.db.Query(`
		SELECT key, value, origin, revision, updated_at
		FROM kv_store WHERE revision > ? ORDER BY revision
	`, rev)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query changed state")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Origin, &e.Revision, &e.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan changed state entry")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CurrentRevision returns the latest assigned revision.
func (s *Store) CurrentRevision() (int64, error) {
	var rev int64
	if err := s.db.QueryRow("SELECT n FROM kv_revision WHERE id = 1").Scan(&rev); err != nil {
		return 0, errors.Wrap(err, "failed to read current revision")
	}
	return rev, nil
}

// GetJSON decodes the value for key into dst. Returns false with a nil
// error when the key does not exist.
func (s *Store) GetJSON(key string, dst interface{}) (bool, error) {
	entry, err := s.Get(key)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(entry.Value), dst); err != nil {
		return false, errors.Wrapf(err, "failed to decode state value for %q", key)
	}
	return true, nil
}

// SetJSON encodes v as JSON and writes it under key.
func (s *Store) SetJSON(key string, v interface{}) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to encode state value for %q", key)
	}
	return s.Set(key, string(data))
}
