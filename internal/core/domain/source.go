package domain

import "time"

// SourceTypeOpenAPI is the only source type currently supported.
const SourceTypeOpenAPI = "openapi"

// Source represents a configured origin of one API specification.
// Sources are owned by the workspace config and referenced by id
// everywhere else.
type Source struct {
	// ID is the unique identifier, restricted to [a-zA-Z0-9._-].
	ID string `json:"id"`

	// Type identifies the source kind. Currently always "openapi".
	Type string `json:"type"`

	// Location is a local file path or an http/https URL.
	Location string `json:"location"`

	// Enabled controls whether the source participates in sync
	// and in exact-resolution scoping.
	Enabled bool `json:"enabled"`

	// AddedAt is when the source was added to the config.
	AddedAt time.Time `json:"addedAt"`
}

// SourceStatus is the per-source outcome of the most recent sync.
// It is fully rewritten on every sync, never partially updated.
type SourceStatus struct {
	SourceID           string     `json:"sourceId"`
	LastFetchedAt      *time.Time `json:"lastFetchedAt"`
	LastOkAt           *time.Time `json:"lastOkAt"`
	LastError          *string    `json:"lastError"`
	DocCountOperations int        `json:"docCountOperations"`
	DocCountSchemas    int        `json:"docCountSchemas"`
}

// SourceListing pairs a configured source with its latest status.
// Status is nil when the index has never been built.
type SourceListing struct {
	Source Source        `json:"source"`
	Status *SourceStatus `json:"status"`
}
