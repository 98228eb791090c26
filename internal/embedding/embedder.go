// Package embedding implements the two-layer embedding provider hierarchy
// (B. Embedding Providers): a TextEmbedder base capability and a
// MultimodalEmbedder extension, behind a uniform space-key discipline.
package embedding

import (
	"context"
	"math"
	"time"
)

// TextEmbedder is the base capability every variant implements.
type TextEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Name() string
	SpaceKeyText() string
}

// MultimodalEmbedder additionally embeds images. A variant implementing it
// also implements TextEmbedder.
type MultimodalEmbedder interface {
	TextEmbedder
	EmbedImage(ctx context.Context, paths []string) ([][]float32, error)
	EmbedTextForImageQuery(ctx context.Context, text string) ([]float32, error)
	SpaceKeyMulti() string
}

// normalize L2-normalizes v in place when needNorm is set. The zero vector
// is passed through unchanged.
func normalize(v []float32, needNorm bool) []float32 {
	if !needNorm || len(v) == 0 {
		return v
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func normalizeAll(vs [][]float32, needNorm bool) [][]float32 {
	for i := range vs {
		vs[i] = normalize(vs[i], needNorm)
	}
	return vs
}

// coolDown sleeps 1/rateLimit seconds after a network call, smoothing
// bursts to shared provider APIs. rateLimit <= 0 disables the cooldown.
func coolDown(rateLimit float64) {
	if rateLimit <= 0 {
		return
	}
	time.Sleep(time.Duration(float64(time.Second) / rateLimit))
}
