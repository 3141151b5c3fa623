// Package state implements the persistent cache ledger backed by
// state.sqlite. It records, per source, the last HTTP validators and the
// blobs fetched for that source, enabling conditional re-fetch and blob
// retention decisions. Unlike the query index, the ledger survives
// across syncs.
package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/storage/state/migrations"
)

// timeLayout is a fixed-width RFC 3339 form so stored timestamps sort
// lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger is the cache ledger over state.sqlite.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the ledger at path and applies
// pending migrations.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	l := &Ledger{db: db, path: path}
	if err := l.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running state migrations: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// migrate runs all pending migrations.
func (l *Ledger) migrate(fsys embed.FS) error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := l.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := l.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== HTTP cache ====================

// UpsertHTTPCache inserts or replaces the cache row for a source.
func (l *Ledger) UpsertHTTPCache(ctx context.Context, entry domain.HTTPCacheEntry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO source_http_cache
			(source_id, location, effective_url, etag, last_modified, last_checked_at, last_fetched_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			location = excluded.location,
			effective_url = excluded.effective_url,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			last_checked_at = excluded.last_checked_at,
			last_fetched_at = excluded.last_fetched_at,
			last_error = excluded.last_error
	`, entry.SourceID, entry.Location, nullString(entry.EffectiveURL),
		nullString(entry.ETag), nullString(entry.LastModified),
		nullTime(entry.LastCheckedAt), nullTime(entry.LastFetchedAt),
		nullStringPtr(entry.LastError))

	if err != nil {
		return fmt.Errorf("upserting http cache for %s: %w", entry.SourceID, err)
	}
	return nil
}

// GetHTTPCache retrieves the cache row for a source.
func (l *Ledger) GetHTTPCache(ctx context.Context, sourceID string) (*domain.HTTPCacheEntry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT source_id, location, effective_url, etag, last_modified, last_checked_at, last_fetched_at, last_error
		FROM source_http_cache WHERE source_id = ?
	`, sourceID)

	var entry domain.HTTPCacheEntry
	var effectiveURL, etag, lastModified, lastCheckedAt, lastFetchedAt, lastError sql.NullString
	if err := row.Scan(&entry.SourceID, &entry.Location, &effectiveURL, &etag,
		&lastModified, &lastCheckedAt, &lastFetchedAt, &lastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning http cache: %w", err)
	}

	entry.EffectiveURL = effectiveURL.String
	entry.ETag = etag.String
	entry.LastModified = lastModified.String
	entry.LastCheckedAt = parseNullTime(lastCheckedAt)
	entry.LastFetchedAt = parseNullTime(lastFetchedAt)
	if lastError.Valid {
		entry.LastError = &lastError.String
	}

	return &entry, nil
}

// ==================== Blob rows ====================

// InsertBlob inserts or replaces a blob row keyed by (sourceId, sha256).
func (l *Ledger) InsertBlob(ctx context.Context, b domain.Blob) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO source_blobs
			(sha256, source_id, fetched_at, kind, location, effective_url, content_type, bytes_length, blob_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, sha256) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			kind = excluded.kind,
			location = excluded.location,
			effective_url = excluded.effective_url,
			content_type = excluded.content_type,
			bytes_length = excluded.bytes_length,
			blob_path = excluded.blob_path
	`, b.SHA256, b.SourceID, b.FetchedAt.UTC().Format(timeLayout), string(b.Kind),
		b.Location, nullString(b.EffectiveURL), nullString(b.ContentType),
		b.BytesLength, b.BlobPath)

	if err != nil {
		return fmt.Errorf("inserting blob row %s/%s: %w", b.SourceID, b.SHA256, err)
	}
	return nil
}

// LatestBlob returns the most recently fetched blob row for a source, or
// domain.ErrNotFound when the source has none.
func (l *Ledger) LatestBlob(ctx context.Context, sourceID string) (*domain.Blob, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT sha256, source_id, fetched_at, kind, location, effective_url, content_type, bytes_length, blob_path
		FROM source_blobs
		WHERE source_id = ?
		ORDER BY fetched_at DESC, sha256 DESC
		LIMIT 1
	`, sourceID)

	return scanBlob(row)
}

// PruneBlobs deletes all blob rows for a source except the single row
// LatestBlob would return, and returns the hashes whose backing files
// are now safe to delete: hashes no longer referenced by any remaining
// row across all sources. Retention keeps only the latest blob per
// source because only it is needed for 304 replay. Equal fetch times
// are broken by sha256 so at most one row ever survives.
func (l *Ledger) PruneBlobs(ctx context.Context, sourceID string) ([]string, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning prune transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `
		SELECT sha256 FROM source_blobs
		WHERE source_id = ?
		AND sha256 <> (
			SELECT sha256 FROM source_blobs
			WHERE source_id = ?
			ORDER BY fetched_at DESC, sha256 DESC
			LIMIT 1
		)
	`, sourceID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying prunable blobs: %w", err)
	}

	var stale []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning prunable blob: %w", err)
		}
		stale = append(stale, hash)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating prunable blobs: %w", err)
	}
	rows.Close()

	if len(stale) == 0 {
		return nil, tx.Commit()
	}

	for _, hash := range stale {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM source_blobs WHERE source_id = ? AND sha256 = ?", sourceID, hash); err != nil {
			return nil, fmt.Errorf("deleting blob row %s: %w", hash, err)
		}
	}

	// A hash is orphaned only when no row from any source references it.
	var orphaned []string
	for _, hash := range stale {
		var refs int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM source_blobs WHERE sha256 = ?", hash).Scan(&refs); err != nil {
			return nil, fmt.Errorf("counting references for %s: %w", hash, err)
		}
		if refs == 0 {
			orphaned = append(orphaned, hash)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing prune: %w", err)
	}
	return orphaned, nil
}

// ==================== Helpers ====================

func scanBlob(row *sql.Row) (*domain.Blob, error) {
	var b domain.Blob
	var kind, fetchedAt string
	var effectiveURL, contentType sql.NullString
	if err := row.Scan(&b.SHA256, &b.SourceID, &fetchedAt, &kind, &b.Location,
		&effectiveURL, &contentType, &b.BytesLength, &b.BlobPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning blob row: %w", err)
	}

	b.Kind = domain.OriginKind(kind)
	b.EffectiveURL = effectiveURL.String
	b.ContentType = contentType.String

	t, err := time.Parse(timeLayout, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing blob fetch time: %w", err)
	}
	b.FetchedAt = t

	return &b, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
