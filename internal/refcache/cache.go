// Package refcache caches per-source reference documents in SQLite so
// repeated combine runs over a mostly-unchanged file list skip the
// expensive indexing phase. Entries are keyed by source locator and
// invalidated by content fingerprint.
package refcache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Cache wraps the SQLite document cache.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("refcache: db path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	cache := &Cache{db: db}
	if err := cache.applyPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := cache.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) applyPragmas(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "PRAGMA synchronous=NORMAL"); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return err
	}
	return nil
}

func (c *Cache) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS documents (
	source TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	doc BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`)
	return err
}

// Get returns the cached document for a source when its stored
// fingerprint matches. A fingerprint mismatch behaves like a miss.
func (c *Cache) Get(ctx context.Context, source, fingerprint string) ([]byte, bool, error) {
	var storedFP string
	var doc []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT fingerprint, doc FROM documents WHERE source = ?", source).Scan(&storedFP, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedFP != fingerprint {
		return nil, false, nil
	}
	return doc, true, nil
}

// Put stores or replaces the cached document for a source.
func (c *Cache) Put(ctx context.Context, source, fingerprint string, doc []byte) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO documents(source, fingerprint, doc, updated_at) VALUES(?, ?, ?, ?)
ON CONFLICT(source) DO UPDATE SET fingerprint = excluded.fingerprint, doc = excluded.doc, updated_at = excluded.updated_at`,
		source, fingerprint, doc, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Delete drops the cached entry for a source.
func (c *Cache) Delete(ctx context.Context, source string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM documents WHERE source = ?", source)
	return err
}

// Len counts cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}
