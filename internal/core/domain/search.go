package domain

// Search limit bounds. Limits outside the range are clamped, not rejected.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// SearchOptions configures a full-text query.
type SearchOptions struct {
	// Kind filters results to one doc kind. DocKindAny (or empty)
	// matches both.
	Kind DocKind

	// SourceID filters results to one source. Empty matches all.
	SourceID string

	// Limit is the maximum number of results, clamped to
	// [1, MaxSearchLimit] with DefaultSearchLimit when unset.
	Limit int
}

// ClampedLimit returns the effective result limit.
func (o SearchOptions) ClampedLimit() int {
	limit := o.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return limit
}

// SearchResult represents a single ranked search hit.
type SearchResult struct {
	// ID is the matched document id.
	ID string `json:"id"`

	// Kind is the matched document kind.
	Kind DocKind `json:"kind"`

	// Title is the matched document title.
	Title string `json:"title"`

	// SourceID is the owning source.
	SourceID string `json:"sourceId"`

	// Snippet is a short highlighted excerpt of the matched body text.
	Snippet string `json:"snippet"`
}
