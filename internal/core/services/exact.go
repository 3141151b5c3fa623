package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apidb-dev/apidb/internal/config"
	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/storage/index"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// ResolveService turns operation/schema keys into document ids.
type ResolveService struct {
	handle workspace.Handle
}

// NewResolveService creates a resolve service for the workspace.
func NewResolveService(h workspace.Handle) *ResolveService {
	return &ResolveService{handle: h}
}

// ResolveOperationDocID resolves (method, path) to a document id. With an
// explicit sourceID the id is computed directly, no I/O. Without one, the
// enabled sources are searched: exactly one match resolves, zero is
// not-found, several is ambiguous.
func (s *ResolveService) ResolveOperationDocID(ctx context.Context, method, path, sourceID string) (string, error) {
	if sourceID != "" {
		return domain.OperationDocID(sourceID, method, path), nil
	}

	methodUpper := strings.ToUpper(method)
	key := methodUpper + " " + path
	return s.resolveAcrossSources(ctx, domain.DocKindOperation, key,
		func(r *index.Reader, enabled []string) ([]index.DocRef, error) {
			return r.FindOperations(ctx, methodUpper, path, enabled)
		})
}

// ResolveSchemaDocID resolves a schema name to a document id, with the
// same source rules as ResolveOperationDocID.
func (s *ResolveService) ResolveSchemaDocID(ctx context.Context, schemaName, sourceID string) (string, error) {
	if sourceID != "" {
		return domain.SchemaDocID(sourceID, schemaName), nil
	}

	return s.resolveAcrossSources(ctx, domain.DocKindSchema, schemaName,
		func(r *index.Reader, enabled []string) ([]index.DocRef, error) {
			return r.FindSchemas(ctx, schemaName, enabled)
		})
}

func (s *ResolveService) resolveAcrossSources(ctx context.Context, kind domain.DocKind, key string, find func(*index.Reader, []string) ([]index.DocRef, error)) (string, error) {
	cfg, err := config.Load(s.handle)
	if err != nil {
		return "", err
	}

	var enabled []string
	for _, src := range cfg.EnabledSources() {
		enabled = append(enabled, src.ID)
	}
	if len(enabled) == 0 {
		return "", fmt.Errorf("no enabled sources; enable at least one in %s: %w",
			s.handle.ConfigPath(), domain.ErrInvalidConfig)
	}

	reader, err := openIndex(s.handle)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	matches, err := find(reader, enabled)
	if err != nil {
		return "", err
	}

	switch len(matches) {
	case 1:
		return matches[0].ID, nil
	case 0:
		return "", fmt.Errorf("%s %s not found in enabled sources (%s); check the key or pass --source <id>: %w",
			kind, key, strings.Join(enabled, ", "), domain.ErrNotFound)
	}

	seen := make(map[string]bool)
	var candidates []string
	for _, m := range matches {
		if !seen[m.SourceID] {
			seen[m.SourceID] = true
			candidates = append(candidates, m.SourceID)
		}
	}
	sort.Strings(candidates)

	return "", &domain.AmbiguousError{Kind: kind, Key: key, SourceIDs: candidates}
}
