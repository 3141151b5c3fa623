package openapi

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

// Truncation bounds for free-text fields carried into payloads.
const (
	maxSchemaDescChars   = 500
	maxPropertyDescChars = 200
)

// Normalize flattens a parsed document into docs for one source:
// one operation doc per (method, path) and one schema doc per named
// component schema. Output ordering is deterministic: paths and schema
// names sorted, methods in a fixed order within a path.
func Normalize(sourceID string, doc *Document) []domain.Doc {
	var docs []domain.Doc

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		for _, entry := range doc.Paths[p].operations() {
			docs = append(docs, operationDoc(sourceID, entry.method, p, entry.op))
		}
	}

	names := make([]string, 0, len(doc.Components.Schemas))
	for name := range doc.Components.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		docs = append(docs, schemaDoc(sourceID, name, doc.Components.Schemas[name]))
	}

	return docs
}

func operationDoc(sourceID, method, path string, op *Operation) domain.Doc {
	title := method + " " + path

	tags := op.Tags
	if len(tags) > domain.MaxOperationTags {
		tags = tags[:domain.MaxOperationTags]
	}
	if tags == nil {
		tags = []string{}
	}

	bodyParts := []string{title, op.OperationID, op.Summary, op.Description}
	bodyParts = append(bodyParts, op.Tags...)

	return domain.Doc{
		ID:       domain.OperationDocID(sourceID, method, path),
		SourceID: sourceID,
		Kind:     domain.DocKindOperation,
		Title:    title,
		Method:   method,
		Path:     path,
		Operation: &domain.OperationPayload{
			Method:      method,
			Path:        path,
			OperationID: op.OperationID,
			Summary:     op.Summary,
			Description: op.Description,
			Tags:        tags,
		},
		Body: joinBody(bodyParts),
	}
}

func schemaDoc(sourceID, name string, schema *Schema) domain.Doc {
	payload := &domain.SchemaPayload{Name: name}
	if schema != nil {
		payload.Type = schema.Type
		payload.Description = schema.Description
		payload.Summary = summarize(schema)
	}

	bodyParts := []string{name}
	var summaryJSON string
	if schema != nil {
		bodyParts = append(bodyParts, schema.Description, schema.Type)
	}
	if payload.Summary != nil {
		if raw, err := json.Marshal(payload.Summary); err == nil {
			summaryJSON = string(raw)
		}
	}
	bodyParts = append(bodyParts, summaryJSON)

	return domain.Doc{
		ID:         domain.SchemaDocID(sourceID, name),
		SourceID:   sourceID,
		Kind:       domain.DocKindSchema,
		Title:      name,
		SchemaName: name,
		Schema:     payload,
		Body:       joinBody(bodyParts),
	}
}

// summarize digests a schema one level deep. A $ref schema collapses to
// just the reference.
func summarize(schema *Schema) *domain.SchemaSummary {
	if schema == nil {
		return nil
	}
	if schema.Ref != "" {
		return &domain.SchemaSummary{Ref: schema.Ref}
	}

	out := &domain.SchemaSummary{
		Type:        schema.Type,
		Format:      schema.Format,
		Description: truncate(schema.Description, maxSchemaDescChars),
	}

	if len(schema.Properties) > 0 {
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > domain.MaxSchemaProperties {
			names = names[:domain.MaxSchemaProperties]
		}

		for _, name := range names {
			p := schema.Properties[name]
			prop := domain.PropertySummary{Name: name}
			if p != nil {
				prop.Type = p.Type
				prop.Ref = p.Ref
				prop.Description = truncate(p.Description, maxPropertyDescChars)
			}
			out.Properties = append(out.Properties, prop)
		}
	}

	return out
}

// joinBody assembles the full-text body from its parts, skipping blanks
// and bounding the total size.
func joinBody(parts []string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return truncate(strings.Join(kept, "\n"), domain.MaxDocBodyChars)
}

// truncate bounds s to n runes, marking cuts with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
