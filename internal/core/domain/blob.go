package domain

import "time"

// OriginKind records how a blob's bytes were obtained.
type OriginKind string

const (
	// OriginURL marks bytes fetched over HTTP/S.
	OriginURL OriginKind = "url"

	// OriginFile marks bytes read from a local path.
	OriginFile OriginKind = "file"
)

// Blob describes raw fetched bytes stored under their content hash.
// Rows are keyed by (SourceID, SHA256): two sources that fetch identical
// bytes get independent rows but share the same underlying stored file.
type Blob struct {
	SHA256       string
	SourceID     string
	FetchedAt    time.Time
	Kind         OriginKind
	Location     string
	EffectiveURL string
	ContentType  string
	BytesLength  int64
	BlobPath     string
}

// HTTPCacheEntry holds the last known validators for a source with a live
// HTTP origin, used to build conditional requests. A 304 response is only
// trustworthy when a prior blob exists to replay.
type HTTPCacheEntry struct {
	SourceID      string
	Location      string
	EffectiveURL  string
	ETag          string
	LastModified  string
	LastCheckedAt *time.Time
	LastFetchedAt *time.Time
	LastError     *string
}
