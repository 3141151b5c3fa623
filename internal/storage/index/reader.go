package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

// Reader serves queries against a published index file. It opens the
// database read-only so a concurrent sync can never corrupt a live query.
type Reader struct {
	db   *sql.DB
	path string
}

// OpenReader opens the index at path for querying. The caller is
// expected to have checked the file exists; a missing index surfaces as
// a query error, not here, because SQLite defers opening to first use.
func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	return &Reader{db: db, path: path}, nil
}

// Close closes the database connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// GetDoc fetches a single document by its id.
func (r *Reader) GetDoc(ctx context.Context, id string) (*domain.Doc, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_id, kind, title, method, path, schema_name, payload, body
		FROM docs WHERE id = ?
	`, id)

	var d domain.Doc
	var kind, payload string
	var method, path, schemaName sql.NullString
	if err := row.Scan(&d.ID, &d.SourceID, &kind, &d.Title,
		&method, &path, &schemaName, &payload, &d.Body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning doc %s: %w", id, err)
	}

	d.Kind = domain.DocKind(kind)
	d.Method = method.String
	d.Path = path.String
	d.SchemaName = schemaName.String

	switch d.Kind {
	case domain.DocKindOperation:
		var op domain.OperationPayload
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			return nil, fmt.Errorf("decoding operation payload for %s: %w", id, err)
		}
		d.Operation = &op
	case domain.DocKindSchema:
		var sc domain.SchemaPayload
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			return nil, fmt.Errorf("decoding schema payload for %s: %w", id, err)
		}
		d.Schema = &sc
	}

	return &d, nil
}

// Search runs a full-text query. Results are ranked by bm25 relevance,
// with operations winning ties against schemas.
func (r *Reader) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	var where []string
	args := []any{query}

	if opts.Kind != "" && opts.Kind != domain.DocKindAny {
		where = append(where, "d.kind = ?")
		args = append(args, string(opts.Kind))
	}
	if opts.SourceID != "" {
		where = append(where, "d.source_id = ?")
		args = append(args, opts.SourceID)
	}

	filter := ""
	if len(where) > 0 {
		filter = " AND " + strings.Join(where, " AND ")
	}
	args = append(args, opts.ClampedLimit())

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			d.id,
			d.kind,
			d.title,
			d.source_id,
			snippet(docs_fts, 1, '', '', '…', 12) AS snippet
		FROM docs_fts
		JOIN docs d ON d.rowid = docs_fts.rowid
		WHERE docs_fts MATCH ?`+filter+`
		ORDER BY
			bm25(docs_fts) ASC,
			CASE WHEN d.kind = 'operation' THEN 0 ELSE 1 END ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var res domain.SearchResult
		var kind string
		if err := rows.Scan(&res.ID, &kind, &res.Title, &res.SourceID, &res.Snippet); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		res.Kind = domain.DocKind(kind)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// Sources returns the sources recorded at index build time, ordered by id.
func (r *Reader) Sources(ctx context.Context) ([]domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, location, enabled, added_at FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		var enabled int
		var addedAt string
		if err := rows.Scan(&s.ID, &s.Type, &s.Location, &enabled, &addedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		s.Enabled = enabled != 0
		t, err := time.Parse(timeLayout, addedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing added time for %s: %w", s.ID, err)
		}
		s.AddedAt = t
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// Statuses returns the recorded sync status per source id.
func (r *Reader) Statuses(ctx context.Context) (map[string]domain.SourceStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source_id, last_fetched_at, last_ok_at, last_error, doc_count_operations, doc_count_schemas
		FROM source_status
	`)
	if err != nil {
		return nil, fmt.Errorf("querying source status: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]domain.SourceStatus)
	for rows.Next() {
		var st domain.SourceStatus
		var fetchedAt, okAt, lastError sql.NullString
		if err := rows.Scan(&st.SourceID, &fetchedAt, &okAt, &lastError,
			&st.DocCountOperations, &st.DocCountSchemas); err != nil {
			return nil, fmt.Errorf("scanning source status: %w", err)
		}
		st.LastFetchedAt = parseNullTime(fetchedAt)
		st.LastOkAt = parseNullTime(okAt)
		if lastError.Valid {
			st.LastError = &lastError.String
		}
		statuses[st.SourceID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source status: %w", err)
	}
	return statuses, nil
}

// DocRef is a (document, source) pair returned by exact lookups.
type DocRef struct {
	ID       string
	SourceID string
}

// FindOperations returns the operation docs matching method and path
// within the given sources, ordered by (source id, doc id) so ambiguity
// reporting is deterministic.
func (r *Reader) FindOperations(ctx context.Context, method, path string, sourceIDs []string) ([]DocRef, error) {
	return r.findDocs(ctx, domain.DocKindOperation,
		"method = ? AND path = ?", []any{strings.ToUpper(method), path}, sourceIDs)
}

// FindSchemas returns the schema docs with the given name within the
// given sources, ordered by (source id, doc id).
func (r *Reader) FindSchemas(ctx context.Context, schemaName string, sourceIDs []string) ([]DocRef, error) {
	return r.findDocs(ctx, domain.DocKindSchema,
		"schema_name = ?", []any{schemaName}, sourceIDs)
}

func (r *Reader) findDocs(ctx context.Context, kind domain.DocKind, keyClause string, keyArgs []any, sourceIDs []string) ([]DocRef, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(sourceIDs))
	placeholders = placeholders[:len(placeholders)-2]

	args := append([]any{string(kind)}, keyArgs...)
	for _, id := range sourceIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id
		FROM docs
		WHERE kind = ?
		AND `+keyClause+`
		AND source_id IN (`+placeholders+`)
		ORDER BY source_id, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying docs: %w", err)
	}
	defer rows.Close()

	var refs []DocRef
	for rows.Next() {
		var ref DocRef
		if err := rows.Scan(&ref.ID, &ref.SourceID); err != nil {
			return nil, fmt.Errorf("scanning doc ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating doc refs: %w", err)
	}
	return refs, nil
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
