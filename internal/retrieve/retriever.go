// Package retrieve implements the Retriever (G. Retriever): the three
// query operations over an embedder, a store.Manager, and an optional
// reranker.
package retrieve

import (
	"context"

	"manifold/internal/config"
	"manifold/internal/embedding"
	"manifold/internal/ragmeta"
	"manifold/internal/rerank"
	"manifold/internal/store"
)

// Logger is the narrow logging capability the retriever needs.
type Logger interface {
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any) {}

func orNoopLogger(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// Retriever implements QueryText/QueryTextMulti/QueryImage, grounded on
// internal/rag/retrieve/package.go's AssembleResults orchestration shape
// (fetch -> [augment] -> rerank -> prune, here pared to fetch -> rerank ->
// truncate) and internal/rag/retrieve/rerank.go's Reranker skeleton,
// generalized to the full internal/rerank contract.
type Retriever struct {
	store           *store.Manager
	reranker        rerank.Reranker
	topK            int
	topKRerankScale int
	dim             int
	dimSet          bool
	log             Logger
}

// Option configures a Retriever during construction.
type Option func(*Retriever)

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option { return func(r *Retriever) { r.log = l } }

// New wires a Retriever from its dependencies and cfg's topk/overfetch
// sizing.
func New(mgr *store.Manager, reranker rerank.Reranker, cfg config.RetrieveConfig, opts ...Option) *Retriever {
	r := &Retriever{
		store:           mgr,
		reranker:        reranker,
		topK:            cfg.TopK,
		topKRerankScale: cfg.TopKRerankScale,
		log:             noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// QueryText embeds q with embedder's text path, over-fetches by
// topk_rerank_scale when a reranker is configured, and reranks before
// truncating to topK.
func (r *Retriever) QueryText(ctx context.Context, embedder embedding.TextEmbedder, q string, topK int) ([]ragmeta.Document, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vec, err := embedder.EmbedQuery(ctx, q)
	if err != nil {
		r.log.Warnf("retrieve: embed query: %v", err)
		return nil, nil
	}

	dim := r.embedderDimension(vec)

	candidates, err := r.store.Query(ctx, embedder.SpaceKeyText(), dim, vec, r.fetchWidth(topK), nil)
	if err != nil {
		return nil, err
	}
	return r.rerankAndTruncate(ctx, candidates, q, topK)
}

// QueryTextMulti embeds q with the multimodal embedder's image-query text
// path, queries the image space, and rewrites each result's payload to
// its caption (if present) or source before handing candidates to the
// reranker, since the cross-encoder scores text.
func (r *Retriever) QueryTextMulti(ctx context.Context, embedder embedding.MultimodalEmbedder, q string, topK int) ([]ragmeta.Document, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vec, err := embedder.EmbedTextForImageQuery(ctx, q)
	if err != nil {
		r.log.Warnf("retrieve: embed text for image query: %v", err)
		return nil, nil
	}

	dim := r.embedderDimension(vec)

	candidates, err := r.store.Query(ctx, embedder.SpaceKeyMulti(), dim, vec, r.fetchWidth(topK), nil)
	if err != nil {
		return nil, err
	}
	return r.rerankAndTruncate(ctx, rewriteForRerank(candidates), q, topK)
}

// QueryImage embeds path with the multimodal embedder's image path,
// queries the image space directly, and returns the nearest topK
// documents with no reranking (the reranker takes text queries, not
// images).
func (r *Retriever) QueryImage(ctx context.Context, embedder embedding.MultimodalEmbedder, path string, topK int) ([]ragmeta.Document, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vecs, err := embedder.EmbedImage(ctx, []string{path})
	if err != nil {
		r.log.Warnf("retrieve: embed image: %v", err)
		return nil, nil
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, nil
	}

	dim := r.embedderDimension(vecs[0])

	docs, err := r.store.Query(ctx, embedder.SpaceKeyMulti(), dim, vecs[0], topK, nil)
	if err != nil {
		return nil, err
	}
	return rewriteForRerank(docs), nil
}

func (r *Retriever) fetchWidth(topK int) int {
	if r.reranker == nil {
		return topK
	}
	if _, isNone := r.reranker.(rerank.NoneReranker); isNone {
		return topK
	}
	scale := r.topKRerankScale
	if scale < 1 {
		scale = 1
	}
	return topK * scale
}

func (r *Retriever) rerankAndTruncate(ctx context.Context, candidates []ragmeta.Document, q string, topK int) ([]ragmeta.Document, error) {
	if r.reranker == nil {
		return headN(candidates, topK), nil
	}
	reranked, err := r.reranker.Rerank(ctx, candidates, q, topK)
	if err != nil {
		r.log.Warnf("retrieve: rerank: %v", err)
		return headN(candidates, topK), nil
	}
	return reranked, nil
}

func headN(docs []ragmeta.Document, n int) []ragmeta.Document {
	if n <= 0 || n >= len(docs) {
		return docs
	}
	return docs[:n]
}

// rewriteForRerank replaces each image document's payload with its
// caption metadata if present, otherwise its source, so a text reranker
// can score it.
func rewriteForRerank(docs []ragmeta.Document) []ragmeta.Document {
	out := make([]ragmeta.Document, len(docs))
	for i, d := range docs {
		if caption, ok := d.Metadata[ragmeta.KeyCaption].(string); ok && caption != "" {
			out[i] = ragmeta.Document{Payload: caption, Metadata: d.Metadata}
			continue
		}
		out[i] = ragmeta.Document{Payload: d.Source(), Metadata: d.Metadata}
	}
	return out
}

// embedderDimension caches the embedder's vector width from a
// just-computed vector, since no embedder variant exposes a dimension
// constant.
func (r *Retriever) embedderDimension(vec []float32) int {
	if r.dimSet {
		return r.dim
	}
	if len(vec) == 0 {
		return 0
	}
	r.dim = len(vec)
	r.dimSet = true
	return r.dim
}
