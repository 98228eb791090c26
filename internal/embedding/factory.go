package embedding

import (
	"fmt"

	"manifold/internal/config"
)

// New selects an embedding provider variant by EMBED_PROVIDER. openai is
// text-only; cohere and local-clip are multimodal. The tagged-union
// discriminator is the runtime realization of Design Note "Dynamic
// dispatch over providers".
func New(cfg config.EmbedConfig, log Logger) (TextEmbedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg, log), nil
	case "cohere":
		return NewCohere(cfg, log), nil
	case "local":
		return NewLocalCLIP(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.Provider)
	}
}
