// Package domain defines the core business entities for apidb.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Source: A configured OpenAPI origin
//   - Doc: An indexed unit (operation or schema) derived from a source
//   - Blob: Raw fetched bytes stored under their content hash
//   - HTTPCacheEntry: Validators for conditional re-fetch
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

// DocKind discriminates the two kinds of indexed documents.
type DocKind string

const (
	// DocKindOperation is an HTTP operation (method + path) document.
	DocKindOperation DocKind = "operation"

	// DocKindSchema is a named component schema document.
	DocKindSchema DocKind = "schema"

	// DocKindAny matches either kind in search filters.
	DocKindAny DocKind = "any"
)

// MaxDocBodyChars bounds the plain-text body used for full-text ranking.
const MaxDocBodyChars = 50_000

// MaxOperationTags caps the tags carried in an operation payload.
const MaxOperationTags = 20

// MaxSchemaProperties caps the property summary of a schema payload.
const MaxSchemaProperties = 200

// Doc is a single indexed unit produced from one source. It is a tagged
// union: Kind selects which of Operation or Schema is non-nil.
type Doc struct {
	// ID is the globally unique document id, a deterministic function of
	// the key fields. See OperationDocID and SchemaDocID.
	ID string `json:"id"`

	// SourceID links to the Source that produced this document.
	SourceID string `json:"sourceId"`

	// Kind is the explicit discriminant, never inferred from nullable fields.
	Kind DocKind `json:"kind"`

	// Title is the human-readable title ("GET /pets" or the schema name).
	Title string `json:"title"`

	// Method and Path key an operation doc. Empty for schema docs.
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`

	// SchemaName keys a schema doc. Empty for operation docs.
	SchemaName string `json:"schemaName,omitempty"`

	// Operation is set when Kind == DocKindOperation.
	Operation *OperationPayload `json:"operation,omitempty"`

	// Schema is set when Kind == DocKindSchema.
	Schema *SchemaPayload `json:"schema,omitempty"`

	// Body is the bounded plain-text used for full-text ranking.
	Body string `json:"body"`
}

// OperationPayload is the structured JSON stored for an operation doc.
type OperationPayload struct {
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	OperationID string   `json:"operationId,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags"`
}

// SchemaPayload is the structured JSON stored for a schema doc.
type SchemaPayload struct {
	Name        string         `json:"name"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	Summary     *SchemaSummary `json:"summary,omitempty"`
}

// SchemaSummary is a bounded digest of a schema's shape.
type SchemaSummary struct {
	Ref         string            `json:"$ref,omitempty"`
	Type        string            `json:"type,omitempty"`
	Format      string            `json:"format,omitempty"`
	Description string            `json:"description,omitempty"`
	Properties  []PropertySummary `json:"properties,omitempty"`
}

// PropertySummary describes one property within a SchemaSummary.
type PropertySummary struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Ref         string `json:"$ref,omitempty"`
	Description string `json:"description,omitempty"`
}
