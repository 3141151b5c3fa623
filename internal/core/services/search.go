package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/storage/index"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// SearchService runs full-text queries against the published index.
type SearchService struct {
	handle workspace.Handle
}

// NewSearchService creates a search service for the workspace.
func NewSearchService(h workspace.Handle) *SearchService {
	return &SearchService{handle: h}
}

// Search queries the published index. Reads take no lock: the index is
// only ever observed in a fully-published state, so a concurrent sync
// can at worst make the results stale, never inconsistent.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	reader, err := openIndex(s.handle)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return reader.Search(ctx, query, opts)
}

// openIndex opens the published index read-only, turning a missing file
// into a user-facing not-found with a hint.
func openIndex(h workspace.Handle) (*index.Reader, error) {
	path := h.IndexPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no index at %s (run `apidb sync` first): %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("checking index: %w", err)
	}
	return index.OpenReader(path)
}
