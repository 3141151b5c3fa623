// Package index implements the query index over index.sqlite: a Builder
// that writes a fresh index file during sync, and a Reader that serves
// queries against the published file. The two never touch the same file;
// sync builds at a temporary path and publishes by rename.
package index

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/storage/index/migrations"
)

const timeLayout = time.RFC3339

// Builder writes a new index file from scratch.
type Builder struct {
	db   *sql.DB
	path string
}

// Create opens a fresh index database at path and applies the schema.
// The file must not already exist as a populated index; sync always
// points this at a temporary path.
func Create(path string) (*Builder, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	b := &Builder{db: db, path: path}
	if err := b.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running index migrations: %w", err)
	}
	return b, nil
}

// Close closes the database connection. Sync must call this before the
// file is renamed into place.
func (b *Builder) Close() error {
	return b.db.Close()
}

// Path returns the database file path.
func (b *Builder) Path() string {
	return b.path
}

// migrate runs all pending migrations.
func (b *Builder) migrate(fsys embed.FS) error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := b.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
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
		if _, err := b.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := b.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// InsertSources records every configured source, enabled or not, so the
// published index is self-describing.
func (b *Builder) InsertSources(ctx context.Context, sources []domain.Source) error {
	for _, s := range sources {
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO sources (id, type, location, enabled, added_at)
			VALUES (?, ?, ?, ?, ?)
		`, s.ID, s.Type, s.Location, boolToInt(s.Enabled), s.AddedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("inserting source %s: %w", s.ID, err)
		}
	}
	return nil
}

// UpsertStatus records the sync outcome for a source.
func (b *Builder) UpsertStatus(ctx context.Context, st domain.SourceStatus) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO source_status
			(source_id, last_fetched_at, last_ok_at, last_error, doc_count_operations, doc_count_schemas)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			last_fetched_at = excluded.last_fetched_at,
			last_ok_at = excluded.last_ok_at,
			last_error = excluded.last_error,
			doc_count_operations = excluded.doc_count_operations,
			doc_count_schemas = excluded.doc_count_schemas
	`, st.SourceID, nullTime(st.LastFetchedAt), nullTime(st.LastOkAt),
		nullStringPtr(st.LastError), st.DocCountOperations, st.DocCountSchemas)
	if err != nil {
		return fmt.Errorf("upserting status for %s: %w", st.SourceID, err)
	}
	return nil
}

// InsertDocs writes a source's documents and their full-text rows in a
// single transaction, so the index never exposes a half-written source.
func (b *Builder) InsertDocs(ctx context.Context, docs []domain.Doc) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning docs transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, d := range docs {
		payload, err := marshalPayload(d)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO docs (id, source_id, kind, title, method, path, schema_name, payload, body)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.SourceID, string(d.Kind), d.Title,
			nullString(d.Method), nullString(d.Path), nullString(d.SchemaName),
			payload, d.Body)
		if err != nil {
			return fmt.Errorf("inserting doc %s: %w", d.ID, err)
		}

		// External-content FTS tables are not populated automatically.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO docs_fts (rowid, title, body)
			SELECT rowid, title, body FROM docs WHERE id = ?
		`, d.ID)
		if err != nil {
			return fmt.Errorf("indexing doc %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing docs: %w", err)
	}
	return nil
}

func marshalPayload(d domain.Doc) (string, error) {
	var v any
	switch d.Kind {
	case domain.DocKindOperation:
		v = d.Operation
	case domain.DocKindSchema:
		v = d.Schema
	default:
		return "", fmt.Errorf("doc %s: unsupported kind %q: %w", d.ID, d.Kind, domain.ErrInvalidInput)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding payload for %s: %w", d.ID, err)
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
