package services

import (
	"context"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// DocumentService fetches single documents from the published index.
type DocumentService struct {
	handle workspace.Handle
}

// NewDocumentService creates a document service for the workspace.
func NewDocumentService(h workspace.Handle) *DocumentService {
	return &DocumentService{handle: h}
}

// GetDoc returns the document with the given id, or domain.ErrNotFound.
func (s *DocumentService) GetDoc(ctx context.Context, id string) (*domain.Doc, error) {
	reader, err := openIndex(s.handle)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return reader.GetDoc(ctx, id)
}
