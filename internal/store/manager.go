package store

import (
	"context"
	"sync"

	"manifold/internal/config"
	"manifold/internal/ragmeta"
)

// Logger is the narrow logging capability the Manager needs.
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

// Manager implements the D. Store Manager algorithm from
// ragserver/store/vector_store_manager.py: per-space fingerprint caches
// over a pluggable Backend, used to skip or replace unchanged sources on
// ingest (delete-then-add, never a partial update).
type Manager struct {
	backend     Backend
	loadLimit   int
	checkUpdate bool
	log         Logger

	mu     sync.Mutex
	loaded map[string]bool                        // spaceKey -> EnsureSpace done
	cache  map[string]map[string]ragmeta.Fingerprint // spaceKey -> source -> fingerprint
}

// NewManager wires a Manager on top of backend using cfg's load_limit and
// check_update policy.
func NewManager(backend Backend, cfg config.StoreConfig, log Logger) *Manager {
	return &Manager{
		backend:     backend,
		loadLimit:   cfg.LoadLimit,
		checkUpdate: cfg.CheckUpdate,
		log:         orNoopLogger(log),
		loaded:      make(map[string]bool),
		cache:       make(map[string]map[string]ragmeta.Fingerprint),
	}
}

// activateSpace ensures the space exists and, on first use, lazily
// populates its fingerprint cache from the backend (bounded by
// load_limit), mirroring activate_space/_load_fingerprint_cache.
func (m *Manager) activateSpace(ctx context.Context, spaceKey string, dimensions int) (map[string]ragmeta.Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cache, ok := m.cache[spaceKey]; ok {
		return cache, nil
	}

	if err := m.backend.EnsureSpace(ctx, spaceKey, dimensions); err != nil {
		return nil, err
	}
	m.loaded[spaceKey] = true

	cache := make(map[string]ragmeta.Fingerprint)
	metas, err := m.backend.ListMetadata(ctx, spaceKey, m.loadLimit)
	if err != nil {
		m.log.Warnf("store: load fingerprint cache for %s: %v", spaceKey, err)
	} else {
		for _, meta := range metas {
			source, _ := meta[ragmeta.KeySource].(string)
			if source == "" {
				continue
			}
			cache[source] = ragmeta.ExtractFingerprint(meta)
		}
	}
	m.cache[spaceKey] = cache
	return cache, nil
}

// SkipUpdate reports whether source can be skipped entirely: check_update
// is false and the source is already present in the cache.
func (m *Manager) SkipUpdate(ctx context.Context, spaceKey string, dimensions int, source string) (bool, error) {
	cache, err := m.activateSpace(ctx, spaceKey, dimensions)
	if err != nil {
		return false, err
	}
	if m.checkUpdate {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := cache[source]
	return ok, nil
}

// filterByFingerprint drops docs whose source is cached with an equal
// fingerprint, keeping everything else (absent source, or a changed
// fingerprint), per _filter_docs_by_fingerprint.
func filterByFingerprint(docs []ragmeta.Document, cache map[string]ragmeta.Fingerprint) []ragmeta.Document {
	out := make([]ragmeta.Document, 0, len(docs))
	for _, d := range docs {
		source := d.Source()
		cached, ok := cache[source]
		if !ok {
			out = append(out, d)
			continue
		}
		fp := ragmeta.ExtractFingerprint(d.Metadata)
		if cached.Equal(fp) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Upsert writes docs (already embedded, one vector per doc) into
// spaceKey: delete-then-add per document id, skipping documents whose
// source fingerprint hasn't changed. Never returns a partial write as an
// error to the caller; failures are logged and an empty result returned,
// per upsert's try/except/log/return-[] shape.
func (m *Manager) Upsert(ctx context.Context, spaceKey string, dimensions int, docs []ragmeta.Document, vectors [][]float32) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	cache, err := m.activateSpace(ctx, spaceKey, dimensions)
	if err != nil {
		m.log.Warnf("store: activate space %s: %v", spaceKey, err)
		return nil, nil
	}

	m.mu.Lock()
	filtered := filterByFingerprint(docs, cache)
	m.mu.Unlock()

	if len(filtered) == 0 {
		return nil, nil
	}

	ids := make([]string, len(filtered))
	for i, d := range filtered {
		ids[i] = d.ID()
	}
	vecs := matchVectors(docs, vectors, filtered)

	if err := m.backend.DeleteDocuments(ctx, spaceKey, ids); err != nil {
		m.log.Warnf("store: delete before upsert in %s: %v", spaceKey, err)
		return nil, nil
	}
	if err := m.backend.AddDocuments(ctx, spaceKey, filtered, vecs, ids); err != nil {
		m.log.Warnf("store: add documents to %s: %v", spaceKey, err)
		return nil, nil
	}

	m.mu.Lock()
	for _, d := range filtered {
		source := d.Source()
		if source == "" {
			continue
		}
		cache[source] = ragmeta.ExtractFingerprint(d.Metadata)
	}
	m.mu.Unlock()

	return ids, nil
}

// matchVectors pairs each filtered doc with the vector computed for it in
// the original docs/vectors slices (filtering docs may have dropped some
// entries but never reorders them).
func matchVectors(docs []ragmeta.Document, vectors [][]float32, filtered []ragmeta.Document) [][]float32 {
	byID := make(map[string]int, len(docs))
	for i, d := range docs {
		byID[d.ID()] = i
	}
	out := make([][]float32, len(filtered))
	for i, d := range filtered {
		if idx, ok := byID[d.ID()]; ok && idx < len(vectors) {
			out[i] = vectors[idx]
		}
	}
	return out
}

// ImageEmbedder is the narrow capability UpsertMulti needs: embedding
// image paths into vectors.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, paths []string) ([][]float32, error)
}

// UpsertMulti writes image-path docs into spaceKey: filterByFingerprint
// runs first, then embedder.EmbedImage computes vectors for the
// surviving docs' payload paths, then delete-then-add proceeds exactly
// as in Upsert. Every temp image file (per
// ragmeta.IsProjectTempFile) among the input docs is unlinked once
// upsert finishes, success or failure, per the guaranteed-release
// cleanup contract.
func (m *Manager) UpsertMulti(ctx context.Context, spaceKey string, dimensions int, docs []ragmeta.Document, embedder ImageEmbedder) ([]string, error) {
	defer func() {
		for _, d := range docs {
			ragmeta.CleanupTempFile(d.Payload, m.log.Warnf)
		}
	}()

	if len(docs) == 0 {
		return nil, nil
	}

	cache, err := m.activateSpace(ctx, spaceKey, dimensions)
	if err != nil {
		m.log.Warnf("store: activate space %s: %v", spaceKey, err)
		return nil, nil
	}

	m.mu.Lock()
	filtered := filterByFingerprint(docs, cache)
	m.mu.Unlock()

	if len(filtered) == 0 {
		return nil, nil
	}

	paths := make([]string, len(filtered))
	ids := make([]string, len(filtered))
	for i, d := range filtered {
		paths[i] = d.Payload
		ids[i] = d.ID()
	}

	vectors, err := embedder.EmbedImage(ctx, paths)
	if err != nil {
		m.log.Warnf("store: embed images for %s: %v", spaceKey, err)
		return nil, nil
	}
	if len(vectors) != len(filtered) {
		m.log.Warnf("store: embed_image returned %d vectors for %d images in %s", len(vectors), len(filtered), spaceKey)
		return nil, nil
	}

	if err := m.backend.DeleteDocuments(ctx, spaceKey, ids); err != nil {
		m.log.Warnf("store: delete before multi-upsert in %s: %v", spaceKey, err)
		return nil, nil
	}
	if err := m.backend.AddDocuments(ctx, spaceKey, filtered, vectors, ids); err != nil {
		m.log.Warnf("store: add image documents to %s: %v", spaceKey, err)
		return nil, nil
	}

	m.mu.Lock()
	for _, d := range filtered {
		if source := d.Source(); source != "" {
			cache[source] = ragmeta.ExtractFingerprint(d.Metadata)
		}
	}
	m.mu.Unlock()

	return ids, nil
}

// Query runs a similarity search in spaceKey. An empty vector (failed
// embed) short-circuits to an empty result with a warning rather than
// calling the backend, per query's empty-vector guard.
func (m *Manager) Query(ctx context.Context, spaceKey string, dimensions int, vector []float32, topK int, filter map[string]any) ([]ragmeta.Document, error) {
	if len(vector) == 0 {
		m.log.Warnf("store: query in %s with empty vector", spaceKey)
		return nil, nil
	}
	if _, err := m.activateSpace(ctx, spaceKey, dimensions); err != nil {
		m.log.Warnf("store: activate space %s: %v", spaceKey, err)
		return nil, nil
	}
	docs, err := m.backend.SimilaritySearchByVector(ctx, spaceKey, vector, topK, filter)
	if err != nil {
		m.log.Warnf("store: query %s: %v", spaceKey, err)
		return nil, nil
	}
	return docs, nil
}
