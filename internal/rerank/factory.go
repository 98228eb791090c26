package rerank

import (
	"fmt"

	"manifold/internal/config"
)

// New selects a rerank provider variant by RERANK_PROVIDER.
func New(cfg config.RerankConfig, log Logger) (Reranker, error) {
	switch cfg.Provider {
	case "none", "":
		return NoneReranker{}, nil
	case "cohere":
		return NewCohere(cfg, log), nil
	case "local":
		return NewLocalHF(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.Provider)
	}
}
