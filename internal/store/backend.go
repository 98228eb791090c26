// Package store implements the vector Store Manager (D. Store Manager):
// a backend-agnostic upsert/query layer with a fingerprint cache that
// makes re-ingestion of unchanged sources a no-op.
package store

import (
	"context"

	"manifold/internal/ragmeta"
)

// Backend is the portable vector store primitive a Manager drives. Each
// concrete backend owns its own space/collection lifecycle; the Manager
// owns the fingerprint-cache and upsert/query algorithm on top of it.
type Backend interface {
	Name() string

	// EnsureSpace creates or activates the named space, sized for
	// dimensions-wide vectors. Called lazily on first use of a space key.
	EnsureSpace(ctx context.Context, spaceKey string, dimensions int) error

	// AddDocuments writes docs (with their already-computed vectors) under
	// ids, one-to-one by index.
	AddDocuments(ctx context.Context, spaceKey string, docs []ragmeta.Document, vectors [][]float32, ids []string) error

	// DeleteDocuments removes ids; deleting an id that doesn't exist is
	// not an error.
	DeleteDocuments(ctx context.Context, spaceKey string, ids []string) error

	// SimilaritySearchByVector returns the topK nearest documents to
	// vector, optionally constrained by an exact-match metadata filter.
	SimilaritySearchByVector(ctx context.Context, spaceKey string, vector []float32, topK int, filter map[string]any) ([]ragmeta.Document, error)

	// ListMetadata returns up to limit documents' metadata, for
	// populating the fingerprint cache on space load.
	ListMetadata(ctx context.Context, spaceKey string, limit int) ([]map[string]any, error)
}
