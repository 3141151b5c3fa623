package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

func opDoc(sourceID, method, path, summary string) domain.Doc {
	title := method + " " + path
	return domain.Doc{
		ID:       domain.OperationDocID(sourceID, method, path),
		SourceID: sourceID,
		Kind:     domain.DocKindOperation,
		Title:    title,
		Method:   method,
		Path:     path,
		Operation: &domain.OperationPayload{
			Method:  method,
			Path:    path,
			Summary: summary,
			Tags:    []string{},
		},
		Body: title + "\n" + summary,
	}
}

func schemaDoc(sourceID, name, description string) domain.Doc {
	return domain.Doc{
		ID:         domain.SchemaDocID(sourceID, name),
		SourceID:   sourceID,
		Kind:       domain.DocKindSchema,
		Title:      name,
		SchemaName: name,
		Schema: &domain.SchemaPayload{
			Name:        name,
			Type:        "object",
			Description: description,
		},
		Body: name + "\n" + description,
	}
}

// buildTestIndex writes a small two-source index and reopens it read-only.
func buildTestIndex(t *testing.T) *Reader {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")

	b, err := Create(path)
	require.NoError(t, err)

	added := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.InsertSources(ctx, []domain.Source{
		{ID: "billing", Type: domain.SourceTypeOpenAPI, Location: "https://example.com/billing.json", Enabled: true, AddedAt: added},
		{ID: "petstore", Type: domain.SourceTypeOpenAPI, Location: "https://example.com/petstore.json", Enabled: true, AddedAt: added},
		{ID: "legacy", Type: domain.SourceTypeOpenAPI, Location: "legacy.yaml", Enabled: false, AddedAt: added},
	}))

	require.NoError(t, b.InsertDocs(ctx, []domain.Doc{
		opDoc("petstore", "GET", "/pets", "List all pets in the store"),
		opDoc("petstore", "POST", "/pets", "Create a pet"),
		schemaDoc("petstore", "Pet", "A pet available in the store"),
	}))
	require.NoError(t, b.InsertDocs(ctx, []domain.Doc{
		opDoc("billing", "GET", "/invoices", "List invoices"),
		schemaDoc("billing", "Pet", "Billing view of a pet"),
	}))

	okAt := added.Add(time.Hour)
	require.NoError(t, b.UpsertStatus(ctx, domain.SourceStatus{
		SourceID: "petstore", LastFetchedAt: &okAt, LastOkAt: &okAt,
		DocCountOperations: 2, DocCountSchemas: 1,
	}))
	require.NoError(t, b.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestGetDocRoundTrip(t *testing.T) {
	r := buildTestIndex(t)
	ctx := context.Background()

	doc, err := r.GetDoc(ctx, "op:petstore:GET:/pets")
	require.NoError(t, err)
	assert.Equal(t, domain.DocKindOperation, doc.Kind)
	assert.Equal(t, "GET /pets", doc.Title)
	assert.Equal(t, "petstore", doc.SourceID)
	require.NotNil(t, doc.Operation)
	assert.Equal(t, "List all pets in the store", doc.Operation.Summary)
	assert.Nil(t, doc.Schema)

	doc, err = r.GetDoc(ctx, "schema:petstore:Pet")
	require.NoError(t, err)
	assert.Equal(t, domain.DocKindSchema, doc.Kind)
	require.NotNil(t, doc.Schema)
	assert.Equal(t, "object", doc.Schema.Type)
	assert.Nil(t, doc.Operation)
}

func TestGetDocNotFound(t *testing.T) {
	r := buildTestIndex(t)

	_, err := r.GetDoc(context.Background(), "op:petstore:DELETE:/pets")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchMatchesAndSnippets(t *testing.T) {
	r := buildTestIndex(t)

	results, err := r.Search(context.Background(), "invoices", domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "op:billing:GET:/invoices", results[0].ID)
	assert.Equal(t, domain.DocKindOperation, results[0].Kind)
	assert.Contains(t, results[0].Snippet, "invoices")
}

func TestSearchRanksOperationsAboveEqualSchemas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")

	b, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, b.InsertSources(ctx, []domain.Source{
		{ID: "petstore", Type: domain.SourceTypeOpenAPI, Location: "petstore.yaml", Enabled: true, AddedAt: time.Now().UTC()},
	}))

	// Identical title and body tokens, and the schema inserted first, so
	// bm25 scores them the same and insertion order favors the schema.
	// The kind tie-break must still put the operation on top.
	op := opDoc("petstore", "GET", "/pets", "")
	op.Title = "alpha beta"
	op.Body = "zebra match"
	schema := schemaDoc("petstore", "Herd", "")
	schema.Title = "alpha beta"
	schema.Body = "zebra match"
	require.NoError(t, b.InsertDocs(ctx, []domain.Doc{schema, op}))
	require.NoError(t, b.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Search(ctx, "zebra", domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.DocKindOperation, results[0].Kind)
	assert.Equal(t, domain.DocKindSchema, results[1].Kind)
}

func TestSearchKindFilter(t *testing.T) {
	r := buildTestIndex(t)
	ctx := context.Background()

	results, err := r.Search(ctx, "pet", domain.SearchOptions{Kind: domain.DocKindSchema})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.Equal(t, domain.DocKindSchema, res.Kind)
	}

	results, err = r.Search(ctx, "pet", domain.SearchOptions{Kind: domain.DocKindOperation})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.Equal(t, domain.DocKindOperation, res.Kind)
	}
}

func TestSearchSourceFilter(t *testing.T) {
	r := buildTestIndex(t)

	results, err := r.Search(context.Background(), "pet", domain.SearchOptions{SourceID: "billing"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.Equal(t, "billing", res.SourceID)
	}
}

func TestSearchLimit(t *testing.T) {
	r := buildTestIndex(t)

	results, err := r.Search(context.Background(), "pet OR pets", domain.SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchNoMatches(t *testing.T) {
	r := buildTestIndex(t)

	results, err := r.Search(context.Background(), "zebra", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSourcesAndStatuses(t *testing.T) {
	r := buildTestIndex(t)
	ctx := context.Background()

	sources, err := r.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, "billing", sources[0].ID)
	assert.Equal(t, "legacy", sources[1].ID)
	assert.False(t, sources[1].Enabled)
	assert.Equal(t, "petstore", sources[2].ID)
	assert.True(t, sources[2].AddedAt.Equal(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)))

	statuses, err := r.Statuses(ctx)
	require.NoError(t, err)
	require.Contains(t, statuses, "petstore")
	st := statuses["petstore"]
	assert.Equal(t, 2, st.DocCountOperations)
	assert.Equal(t, 1, st.DocCountSchemas)
	assert.NotNil(t, st.LastOkAt)
	assert.Nil(t, st.LastError)
	assert.NotContains(t, statuses, "billing")
}

func TestFindOperations(t *testing.T) {
	r := buildTestIndex(t)
	ctx := context.Background()

	refs, err := r.FindOperations(ctx, "get", "/pets", []string{"billing", "petstore"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "op:petstore:GET:/pets", refs[0].ID)

	refs, err = r.FindOperations(ctx, "GET", "/pets", []string{"billing"})
	require.NoError(t, err)
	assert.Empty(t, refs)

	refs, err = r.FindOperations(ctx, "GET", "/pets", nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestFindSchemasOrdering(t *testing.T) {
	r := buildTestIndex(t)

	refs, err := r.FindSchemas(context.Background(), "Pet", []string{"petstore", "billing"})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "billing", refs[0].SourceID)
	assert.Equal(t, "petstore", refs[1].SourceID)
}

func TestStatusUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")

	b, err := Create(path)
	require.NoError(t, err)
	defer b.Close()

	added := time.Now().UTC()
	require.NoError(t, b.InsertSources(ctx, []domain.Source{
		{ID: "petstore", Type: domain.SourceTypeOpenAPI, Location: "u", Enabled: true, AddedAt: added},
	}))

	require.NoError(t, b.UpsertStatus(ctx, domain.SourceStatus{
		SourceID: "petstore", LastFetchedAt: &added,
	}))
	failure := "fetch failed: status 503"
	require.NoError(t, b.UpsertStatus(ctx, domain.SourceStatus{
		SourceID: "petstore", LastFetchedAt: &added, LastError: &failure,
	}))

	// Status rows are visible through a reader once the builder closes.
	require.NoError(t, b.Close())
	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	statuses, err := r.Statuses(ctx)
	require.NoError(t, err)
	require.Contains(t, statuses, "petstore")
	require.NotNil(t, statuses["petstore"].LastError)
	assert.Equal(t, failure, *statuses["petstore"].LastError)
}
