// Package services implements the application services behind the CLI:
// the sync pipeline that rebuilds the index, and the read-only query
// services over a published index.
package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/apidb-dev/apidb/internal/config"
	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/fetch"
	"github.com/apidb-dev/apidb/internal/logger"
	"github.com/apidb-dev/apidb/internal/openapi"
	"github.com/apidb-dev/apidb/internal/settings"
	"github.com/apidb-dev/apidb/internal/storage/blob"
	"github.com/apidb-dev/apidb/internal/storage/index"
	"github.com/apidb-dev/apidb/internal/storage/state"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// sourceFetcher is the slice of fetch.Fetcher the sync pipeline needs.
type sourceFetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// Syncer rebuilds the query index from the configured sources.
type Syncer struct {
	handle   workspace.Handle
	settings settings.Settings
	fetcher  sourceFetcher
}

// NewSyncer creates a Syncer for the workspace. Fetch behaviour (timeout,
// rate limit) comes from the workspace settings.
func NewSyncer(h workspace.Handle, set settings.Settings) *Syncer {
	return &Syncer{
		handle:   h,
		settings: set,
		fetcher: fetch.New(fetch.Options{
			Timeout:           time.Duration(set.FetchTimeoutSeconds) * time.Second,
			RequestsPerSecond: set.FetchRequestsPerSecond,
			Burst:             set.FetchBurst,
		}),
	}
}

// SyncOptions tunes one sync run.
type SyncOptions struct {
	// Strict aborts the whole sync on the first failing source. When
	// false, failures are recorded and remaining sources still sync.
	Strict bool

	// AllowPrivateNet disables the SSRF defence for this run.
	AllowPrivateNet bool
}

// SyncResult summarises a completed sync.
type SyncResult struct {
	SourcesProcessed int `json:"sourcesProcessed"`
	DocsInserted     int `json:"docsInserted"`
}

// Sync rebuilds the index under the workspace lock. The new index is
// assembled at a temporary path and only renamed over the published one
// once complete, so a failure at any point leaves the previous index
// untouched.
func (s *Syncer) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	var result *SyncResult
	err := workspace.WithLock(s.handle, func() error {
		r, err := s.syncLocked(ctx, opts)
		result = r
		return err
	})
	return result, err
}

func (s *Syncer) syncLocked(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	cfg, err := config.Load(s.handle)
	if err != nil {
		return nil, err
	}
	enabled := cfg.EnabledSources()
	logger.Section("sync")
	logger.Debug("Syncing %d enabled source(s)", len(enabled))

	if err := s.handle.EnsureDir(); err != nil {
		return nil, err
	}

	tmpPath := s.handle.IndexTmpPath()
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale temp index: %w", err)
	}
	// WAL sidecar files from a crashed previous run.
	os.Remove(tmpPath + "-wal")
	os.Remove(tmpPath + "-shm")

	ledger, err := state.Open(s.handle.StatePath())
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	blobs := blob.NewStore(s.handle.BlobDir())
	if err := blobs.EnsureDir(); err != nil {
		return nil, err
	}

	builder, err := index.Create(tmpPath)
	if err != nil {
		return nil, err
	}

	result, err := s.buildIndex(ctx, builder, cfg, ledger, blobs, opts)
	if err != nil {
		builder.Close()
		os.Remove(tmpPath)
		return nil, err
	}

	if err := builder.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing new index: %w", err)
	}

	if err := s.publish(tmpPath); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	logger.Info("Sync complete: %d source(s), %d doc(s)", result.SourcesProcessed, result.DocsInserted)
	return result, nil
}

func (s *Syncer) buildIndex(ctx context.Context, builder *index.Builder, cfg *config.Config, ledger *state.Ledger, blobs *blob.Store, opts SyncOptions) (*SyncResult, error) {
	// Every configured source is recorded, enabled or not, so the
	// published index is self-describing.
	if err := builder.InsertSources(ctx, cfg.Sources); err != nil {
		return nil, err
	}

	var allDocs []domain.Doc
	enabled := cfg.EnabledSources()

	for _, src := range enabled {
		fetchedAt := time.Now().UTC()

		docs, err := s.syncSource(ctx, src, ledger, blobs, opts)
		if err != nil {
			logger.Warn("Source %s failed: %v", src.ID, err)
			msg := err.Error()
			if stErr := builder.UpsertStatus(ctx, domain.SourceStatus{
				SourceID:      src.ID,
				LastFetchedAt: &fetchedAt,
				LastError:     &msg,
			}); stErr != nil {
				return nil, stErr
			}
			if opts.Strict {
				return nil, &domain.SourceError{SourceID: src.ID, Err: err}
			}
			continue
		}

		opCount, schemaCount := 0, 0
		for _, d := range docs {
			switch d.Kind {
			case domain.DocKindOperation:
				opCount++
			case domain.DocKindSchema:
				schemaCount++
			}
		}
		logger.Debug("Source %s: %d operation(s), %d schema(s)", src.ID, opCount, schemaCount)

		if err := builder.UpsertStatus(ctx, domain.SourceStatus{
			SourceID:           src.ID,
			LastFetchedAt:      &fetchedAt,
			LastOkAt:           &fetchedAt,
			DocCountOperations: opCount,
			DocCountSchemas:    schemaCount,
		}); err != nil {
			return nil, err
		}

		allDocs = append(allDocs, docs...)
	}

	if err := builder.InsertDocs(ctx, allDocs); err != nil {
		return nil, err
	}

	return &SyncResult{SourcesProcessed: len(enabled), DocsInserted: len(allDocs)}, nil
}

// syncSource fetches, caches and normalizes one source into docs.
func (s *Syncer) syncSource(ctx context.Context, src domain.Source, ledger *state.Ledger, blobs *blob.Store, opts SyncOptions) ([]domain.Doc, error) {
	raw, err := s.fetchSource(ctx, src, ledger, blobs, opts)
	if err != nil {
		return nil, err
	}

	doc, err := openapi.Parse(raw, src.Location)
	if err != nil {
		return nil, err
	}
	return openapi.Normalize(src.ID, doc), nil
}

// fetchSource resolves a source to bytes, maintaining the cache ledger
// and blob store along the way. A 304 answer replays the last persisted
// blob instead of the (absent) network body.
func (s *Syncer) fetchSource(ctx context.Context, src domain.Source, ledger *state.Ledger, blobs *blob.Store, opts SyncOptions) ([]byte, error) {
	req := fetch.Request{
		Location:        s.resolveLocation(src.Location),
		MaxBytes:        s.settings.MaxSourceBytes,
		AllowPrivateNet: opts.AllowPrivateNet || s.settings.AllowPrivateNet,
	}

	isURL := isHTTPURL(src.Location)
	var cached *domain.HTTPCacheEntry
	if isURL {
		entry, err := ledger.GetHTTPCache(ctx, src.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// Validators from a previous location must not suppress a
		// full fetch of the new one.
		if entry != nil && entry.Location == src.Location {
			cached = entry
			req.ETag = entry.ETag
			req.LastModified = entry.LastModified
		}
	}

	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		if isURL {
			s.recordFetchError(ctx, ledger, src, cached, err)
		}
		return nil, err
	}

	now := time.Now().UTC()

	if resp.NotModified {
		prior, err := ledger.LatestBlob(ctx, src.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%s answered 304 but no prior blob exists to replay: %w", src.Location, domain.ErrFetch)
			}
			return nil, err
		}
		raw, err := blobs.Read(prior.SHA256)
		if err != nil {
			return nil, fmt.Errorf("replaying blob %s: %w", prior.SHA256, err)
		}
		logger.Debug("Source %s not modified, replaying blob %s", src.ID, prior.SHA256)

		entry := domain.HTTPCacheEntry{
			SourceID:      src.ID,
			Location:      src.Location,
			EffectiveURL:  resp.EffectiveURL,
			ETag:          resp.ETag,
			LastModified:  resp.LastModified,
			LastCheckedAt: &now,
		}
		if cached != nil {
			if entry.ETag == "" {
				entry.ETag = cached.ETag
			}
			if entry.LastModified == "" {
				entry.LastModified = cached.LastModified
			}
			entry.LastFetchedAt = cached.LastFetchedAt
		}
		if err := ledger.UpsertHTTPCache(ctx, entry); err != nil {
			return nil, err
		}
		return raw, nil
	}

	put, err := blobs.Put(resp.Bytes)
	if err != nil {
		return nil, err
	}
	if err := ledger.InsertBlob(ctx, domain.Blob{
		SHA256:       put.Hash,
		SourceID:     src.ID,
		FetchedAt:    now,
		Kind:         resp.Kind,
		Location:     src.Location,
		EffectiveURL: resp.EffectiveURL,
		ContentType:  resp.ContentType,
		BytesLength:  int64(len(resp.Bytes)),
		BlobPath:     put.Path,
	}); err != nil {
		return nil, err
	}

	orphaned, err := ledger.PruneBlobs(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	for _, hash := range orphaned {
		if err := blobs.Remove(hash); err != nil {
			logger.Warn("Could not remove blob %s: %v", hash, err)
		}
	}

	if isURL {
		if err := ledger.UpsertHTTPCache(ctx, domain.HTTPCacheEntry{
			SourceID:      src.ID,
			Location:      src.Location,
			EffectiveURL:  resp.EffectiveURL,
			ETag:          resp.ETag,
			LastModified:  resp.LastModified,
			LastCheckedAt: &now,
			LastFetchedAt: &now,
		}); err != nil {
			return nil, err
		}
	}

	return resp.Bytes, nil
}

// recordFetchError notes the failure in the cache ledger, preserving any
// validators so the next sync can still go conditional.
func (s *Syncer) recordFetchError(ctx context.Context, ledger *state.Ledger, src domain.Source, cached *domain.HTTPCacheEntry, fetchErr error) {
	now := time.Now().UTC()
	msg := fetchErr.Error()
	entry := domain.HTTPCacheEntry{
		SourceID:      src.ID,
		Location:      src.Location,
		LastCheckedAt: &now,
		LastError:     &msg,
	}
	if cached != nil {
		entry.EffectiveURL = cached.EffectiveURL
		entry.ETag = cached.ETag
		entry.LastModified = cached.LastModified
		entry.LastFetchedAt = cached.LastFetchedAt
	}
	if err := ledger.UpsertHTTPCache(ctx, entry); err != nil {
		logger.Warn("Could not record fetch error for %s: %v", src.ID, err)
	}
}

// resolveLocation anchors relative file paths at the workspace root so
// sync behaves the same regardless of the process working directory.
func (s *Syncer) resolveLocation(location string) string {
	if isHTTPURL(location) || filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(s.handle.Root(), location)
}

// publish atomically swaps the new index in, keeping the previous one
// as a backup. The rename is the only atomicity boundary readers need.
func (s *Syncer) publish(tmpPath string) error {
	finalPath := s.handle.IndexPath()
	bakPath := s.handle.IndexBakPath()

	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Remove(bakPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing old backup index: %w", err)
		}
		if err := os.Rename(finalPath, bakPath); err != nil {
			return fmt.Errorf("backing up current index: %w", err)
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("publishing new index: %w", err)
	}
	return nil
}

func isHTTPURL(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
