package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"manifold/internal/ragmeta"
)

// Memory is an in-process Backend with no persistence, used in tests and
// the memory VECTOR_STORE provider. Grounded on
// internal/persistence/databases/memory_vector.go, generalized to
// map[string]any metadata and per-space collections.
type Memory struct {
	mu     sync.RWMutex
	spaces map[string]map[string]memoryEntry // spaceKey -> id -> entry
}

type memoryEntry struct {
	vector   []float32
	payload  string
	metadata map[string]any
}

// NewMemory constructs an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{spaces: make(map[string]map[string]memoryEntry)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) EnsureSpace(_ context.Context, spaceKey string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spaces[spaceKey]; !ok {
		m.spaces[spaceKey] = make(map[string]memoryEntry)
	}
	return nil
}

func (m *Memory) AddDocuments(_ context.Context, spaceKey string, docs []ragmeta.Document, vectors [][]float32, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	space := m.spaces[spaceKey]
	if space == nil {
		space = make(map[string]memoryEntry)
		m.spaces[spaceKey] = space
	}
	for i, d := range docs {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		space[ids[i]] = memoryEntry{vector: vec, payload: d.Payload, metadata: copyMeta(d.Metadata)}
	}
	return nil
}

func (m *Memory) DeleteDocuments(_ context.Context, spaceKey string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	space := m.spaces[spaceKey]
	for _, id := range ids {
		delete(space, id)
	}
	return nil
}

func (m *Memory) SimilaritySearchByVector(_ context.Context, spaceKey string, vector []float32, topK int, filter map[string]any) ([]ragmeta.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}
	space := m.spaces[spaceKey]
	qnorm := vecNorm(vector)

	type scored struct {
		doc   ragmeta.Document
		score float64
	}
	results := make([]scored, 0, len(space))
	for _, e := range space {
		if !matchesFilter(e.metadata, filter) {
			continue
		}
		score := cosineSim(vector, e.vector, qnorm)
		results = append(results, scored{doc: ragmeta.Document{Payload: e.payload, Metadata: copyMeta(e.metadata)}, score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]ragmeta.Document, len(results))
	for i, r := range results {
		out[i] = r.doc
	}
	return out, nil
}

func (m *Memory) ListMetadata(_ context.Context, spaceKey string, limit int) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	space := m.spaces[spaceKey]
	out := make([]map[string]any, 0, len(space))
	for _, e := range space {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, copyMeta(e.metadata))
	}
	return out, nil
}

func copyMeta(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func matchesFilter(md map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	for k, v := range filter {
		if fmt.Sprintf("%v", md[k]) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func vecNorm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosineSim(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = vecNorm(a)
	}
	bnorm := vecNorm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
