package store

import (
	"context"
	"fmt"

	"manifold/internal/config"
)

// NewBackend selects a vector store backend by VECTOR_STORE.
func NewBackend(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Provider {
	case "memory":
		return NewMemory(), nil
	case "pgvector":
		return NewPGVector(ctx, cfg)
	case "qdrant":
		return NewQdrant(cfg.QdrantDSN)
	case "chroma":
		return NewChroma(cfg), nil
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
}
