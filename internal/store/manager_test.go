package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifold/internal/config"
	"manifold/internal/ragmeta"
)

func docWith(source, fpSHA string) ragmeta.Document {
	return ragmeta.Document{
		Payload: "payload for " + source,
		Metadata: map[string]any{
			ragmeta.KeyID:         source + "::" + fpSHA,
			ragmeta.KeySource:     source,
			ragmeta.KeyFPSize:     int64(10),
			ragmeta.KeyFPMtime:    float64(1),
			ragmeta.KeyFPSHA256:   fpSHA,
		},
	}
}

func newTestManager() *Manager {
	return NewManager(NewMemory(), config.StoreConfig{LoadLimit: 10000, CheckUpdate: false}, nil)
}

func TestUpsert_EmptyInputReturnsNil(t *testing.T) {
	m := newTestManager()
	ids, err := m.Upsert(context.Background(), "space", 2, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestUpsert_DropsUnchangedSource_KeepsChangedOne(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	d1 := docWith("a.txt", "sha-1")
	ids, err := m.Upsert(ctx, "space", 2, []ragmeta.Document{d1}, [][]float32{{1, 0}})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// re-upserting the identical fingerprint should be filtered out
	ids, err = m.Upsert(ctx, "space", 2, []ragmeta.Document{d1}, [][]float32{{1, 0}})
	require.NoError(t, err)
	assert.Empty(t, ids)

	// a changed fingerprint for the same source should go through
	d2 := docWith("a.txt", "sha-2")
	ids, err = m.Upsert(ctx, "space", 2, []ragmeta.Document{d2}, [][]float32{{0, 1}})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSkipUpdate_RespectsCheckUpdateFlag(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemory(), config.StoreConfig{LoadLimit: 10000, CheckUpdate: false}, nil)

	d1 := docWith("a.txt", "sha-1")
	_, err := m.Upsert(ctx, "space", 2, []ragmeta.Document{d1}, [][]float32{{1, 0}})
	require.NoError(t, err)

	skip, err := m.SkipUpdate(ctx, "space", 2, "a.txt")
	require.NoError(t, err)
	assert.True(t, skip)

	skip, err = m.SkipUpdate(ctx, "space", 2, "never-seen.txt")
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestSkipUpdate_AlwaysFalseWhenCheckUpdateTrue(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemory(), config.StoreConfig{LoadLimit: 10000, CheckUpdate: true}, nil)

	d1 := docWith("a.txt", "sha-1")
	_, err := m.Upsert(ctx, "space", 2, []ragmeta.Document{d1}, [][]float32{{1, 0}})
	require.NoError(t, err)

	skip, err := m.SkipUpdate(ctx, "space", 2, "a.txt")
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestQuery_EmptyVectorShortCircuits(t *testing.T) {
	m := newTestManager()
	docs, err := m.Query(context.Background(), "space", 2, nil, 5, nil)
	require.NoError(t, err)
	assert.Nil(t, docs)
}

func TestQuery_ReturnsNearestByVector(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	d1 := docWith("a.txt", "sha-1")
	d2 := docWith("b.txt", "sha-2")
	_, err := m.Upsert(ctx, "space", 2, []ragmeta.Document{d1, d2}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	results, err := m.Query(ctx, "space", 2, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].Source())
}

type fakeImageEmbedder struct {
	vectors [][]float32
	err     error
}

func (f fakeImageEmbedder) EmbedImage(_ context.Context, paths []string) ([][]float32, error) {
	return f.vectors, f.err
}

func TestUpsertMulti_EmbedsAndWritesImageDocs(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	d := docWith("img.png", "sha-1")
	embedder := fakeImageEmbedder{vectors: [][]float32{{1, 2}}}
	ids, err := m.UpsertMulti(ctx, "space", 2, []ragmeta.Document{d}, embedder)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestUpsertMulti_EmbedFailureReturnsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	d := docWith("img.png", "sha-1")
	embedder := fakeImageEmbedder{vectors: nil}
	ids, err := m.UpsertMulti(ctx, "space", 2, []ragmeta.Document{d}, embedder)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
