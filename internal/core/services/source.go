package services

import (
	"context"
	"errors"

	"github.com/apidb-dev/apidb/internal/config"
	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// SourceService lists configured sources with their last sync status.
type SourceService struct {
	handle workspace.Handle
}

// NewSourceService creates a source service for the workspace.
func NewSourceService(h workspace.Handle) *SourceService {
	return &SourceService{handle: h}
}

// List returns every configured source in config order, joined with its
// status from the published index. A workspace that has never synced has
// no index yet; that is not an error, statuses are simply absent.
func (s *SourceService) List(ctx context.Context) ([]domain.SourceListing, error) {
	cfg, err := config.Load(s.handle)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]domain.SourceStatus)
	reader, err := openIndex(s.handle)
	if err == nil {
		statuses, err = reader.Statuses(ctx)
		reader.Close()
		if err != nil {
			return nil, err
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	listings := make([]domain.SourceListing, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		listing := domain.SourceListing{Source: src}
		if st, ok := statuses[src.ID]; ok {
			listing.Status = &st
		}
		listings = append(listings, listing)
	}
	return listings, nil
}
