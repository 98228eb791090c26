package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifold/internal/config"
	"manifold/internal/ragmeta"
	"manifold/internal/rerank"
	"manifold/internal/store"
)

type fakeTextEmbedder struct {
	dim      int
	queryVec []float32
	queryErr error
}

func (f *fakeTextEmbedder) Name() string        { return "fake" }
func (f *fakeTextEmbedder) SpaceKeyText() string { return "fake::text::text" }
func (f *fakeTextEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, f.dim)
	}
	return vecs, nil
}
func (f *fakeTextEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryVec != nil {
		return f.queryVec, nil
	}
	return make([]float32, f.dim), nil
}

type fakeMultiEmbedder struct {
	fakeTextEmbedder
	imageVecs [][]float32
	imageErr  error
}

func (f *fakeMultiEmbedder) SpaceKeyMulti() string { return "fake::image::image" }
func (f *fakeMultiEmbedder) EmbedTextForImageQuery(_ context.Context, _ string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return make([]float32, f.dim), nil
}
func (f *fakeMultiEmbedder) EmbedImage(_ context.Context, paths []string) ([][]float32, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	if f.imageVecs != nil {
		return f.imageVecs, nil
	}
	vecs := make([][]float32, len(paths))
	for i := range paths {
		vecs[i] = make([]float32, f.dim)
	}
	return vecs, nil
}

// stubReranker reorders nothing but records the topK and the number of
// candidate documents it was called with, and can be made to fail.
type stubReranker struct {
	err           error
	gotTopK       int
	gotCandidates int
	calls         int
}

func (s *stubReranker) Name() string { return "stub" }
func (s *stubReranker) Rerank(_ context.Context, docs []ragmeta.Document, _ string, topK int) ([]ragmeta.Document, error) {
	s.calls++
	s.gotTopK = topK
	s.gotCandidates = len(docs)
	if s.err != nil {
		return nil, s.err
	}
	if topK > 0 && topK < len(docs) {
		return docs[:topK], nil
	}
	return docs, nil
}

func seedDocs(t *testing.T, mgr *store.Manager, spaceKey string, dim, n int) {
	t.Helper()
	docs := make([]ragmeta.Document, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		docs[i] = ragmeta.Document{
			Payload: "body",
			Metadata: map[string]any{
				ragmeta.KeyID:         spaceKey + "::doc" + string(rune('a'+i)),
				ragmeta.KeySource:     "source" + string(rune('a'+i)),
				ragmeta.KeyBaseSource: "",
				ragmeta.KeySpaceKey:   spaceKey,
				ragmeta.KeyEmbedType:  ragmeta.EmbedTypeText,
			},
		}
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		vecs[i] = vec
	}
	_, err := mgr.Upsert(context.Background(), spaceKey, dim, docs, vecs)
	require.NoError(t, err)
}

func newManager(t *testing.T) *store.Manager {
	t.Helper()
	return store.NewManager(store.NewMemory(), config.StoreConfig{LoadLimit: 1000}, nil)
}

func TestQueryText_NoReranker_TruncatesToTopK(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeTextEmbedder{dim: 4}
	seedDocs(t, mgr, embedder.SpaceKeyText(), 4, 5)

	r := New(mgr, nil, config.RetrieveConfig{TopK: 2, TopKRerankScale: 3})
	docs, err := r.QueryText(context.Background(), embedder, "hello", 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestQueryText_WithReranker_OverfetchesThenTruncates(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeTextEmbedder{dim: 4}
	seedDocs(t, mgr, embedder.SpaceKeyText(), 4, 10)

	reranker := &stubReranker{}
	r := New(mgr, reranker, config.RetrieveConfig{TopK: 2, TopKRerankScale: 3})
	docs, err := r.QueryText(context.Background(), embedder, "hello", 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, reranker.gotTopK)
	assert.Equal(t, 6, reranker.gotCandidates, "topK 2 times scale 3 candidates are fetched before rerank")
	assert.Equal(t, 1, reranker.calls)
}

func TestQueryText_NoneReranker_DoesNotOverfetch(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeTextEmbedder{dim: 4}
	seedDocs(t, mgr, embedder.SpaceKeyText(), 4, 10)

	r := New(mgr, rerank.NoneReranker{}, config.RetrieveConfig{TopK: 2, TopKRerankScale: 5})
	docs, err := r.QueryText(context.Background(), embedder, "hello", 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, r.fetchWidth(2))
}

func TestQueryText_RerankError_FallsBackToTruncatedCandidates(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeTextEmbedder{dim: 4}
	seedDocs(t, mgr, embedder.SpaceKeyText(), 4, 5)

	reranker := &stubReranker{err: errors.New("boom")}
	r := New(mgr, reranker, config.RetrieveConfig{TopK: 2, TopKRerankScale: 2})
	docs, err := r.QueryText(context.Background(), embedder, "hello", 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestQueryText_EmbedFailure_ReturnsEmptyNoError(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeTextEmbedder{dim: 4, queryErr: errors.New("embed down")}

	r := New(mgr, nil, config.RetrieveConfig{TopK: 3})
	docs, err := r.QueryText(context.Background(), embedder, "hello", 0)
	assert.NoError(t, err)
	assert.Nil(t, docs)
}

func TestQueryTextMulti_RewritesPayloadToCaptionBeforeRerank(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeMultiEmbedder{fakeTextEmbedder: fakeTextEmbedder{dim: 4}}

	doc := ragmeta.Document{
		Payload: "/tmp/irrelevant.png",
		Metadata: map[string]any{
			ragmeta.KeyID:         "id1",
			ragmeta.KeySource:     "src1",
			ragmeta.KeyBaseSource: "",
			ragmeta.KeySpaceKey:   embedder.SpaceKeyMulti(),
			ragmeta.KeyEmbedType:  ragmeta.EmbedTypeImage,
			ragmeta.KeyCaption:    "a red bicycle",
		},
	}
	vec := make([]float32, 4)
	_, err := mgr.Upsert(context.Background(), embedder.SpaceKeyMulti(), 4, []ragmeta.Document{doc}, [][]float32{vec})
	require.NoError(t, err)

	reranker := &stubReranker{}
	r := New(mgr, reranker, config.RetrieveConfig{TopK: 1, TopKRerankScale: 1})
	docs, err := r.QueryTextMulti(context.Background(), embedder, "bicycle", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a red bicycle", docs[0].Payload)
}

func TestQueryTextMulti_FallsBackToSourceWhenNoCaption(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeMultiEmbedder{fakeTextEmbedder: fakeTextEmbedder{dim: 4}}

	doc := ragmeta.Document{
		Payload: "/tmp/irrelevant.png",
		Metadata: map[string]any{
			ragmeta.KeyID:         "id1",
			ragmeta.KeySource:     "src1",
			ragmeta.KeyBaseSource: "",
			ragmeta.KeySpaceKey:   embedder.SpaceKeyMulti(),
			ragmeta.KeyEmbedType:  ragmeta.EmbedTypeImage,
		},
	}
	vec := make([]float32, 4)
	_, err := mgr.Upsert(context.Background(), embedder.SpaceKeyMulti(), 4, []ragmeta.Document{doc}, [][]float32{vec})
	require.NoError(t, err)

	r := New(mgr, nil, config.RetrieveConfig{TopK: 1})
	docs, err := r.QueryTextMulti(context.Background(), embedder, "bicycle", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "src1", docs[0].Payload)
}

func TestQueryImage_NoRerank(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeMultiEmbedder{fakeTextEmbedder: fakeTextEmbedder{dim: 4}}

	doc := ragmeta.Document{
		Payload: "/tmp/irrelevant.png",
		Metadata: map[string]any{
			ragmeta.KeyID:         "id1",
			ragmeta.KeySource:     "src1",
			ragmeta.KeyBaseSource: "",
			ragmeta.KeySpaceKey:   embedder.SpaceKeyMulti(),
			ragmeta.KeyEmbedType:  ragmeta.EmbedTypeImage,
		},
	}
	vec := make([]float32, 4)
	_, err := mgr.Upsert(context.Background(), embedder.SpaceKeyMulti(), 4, []ragmeta.Document{doc}, [][]float32{vec})
	require.NoError(t, err)

	reranker := &stubReranker{}
	r := New(mgr, reranker, config.RetrieveConfig{TopK: 1})
	docs, err := r.QueryImage(context.Background(), embedder, "/tmp/query.png", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "src1", docs[0].Payload)
	assert.Equal(t, 0, reranker.calls, "QueryImage must not invoke the reranker")
}

func TestQueryImage_EmptyEmbedVector_ReturnsEmptyNoError(t *testing.T) {
	mgr := newManager(t)
	embedder := &fakeMultiEmbedder{
		fakeTextEmbedder: fakeTextEmbedder{dim: 4},
		imageVecs:        [][]float32{{}},
	}

	r := New(mgr, nil, config.RetrieveConfig{TopK: 1})
	docs, err := r.QueryImage(context.Background(), embedder, "/tmp/query.png", 1)
	assert.NoError(t, err)
	assert.Nil(t, docs)
}

func TestEmbedderDimension_ProbedOnceAndCached(t *testing.T) {
	r := &Retriever{}
	dim := r.embedderDimension([]float32{1, 2, 3})
	assert.Equal(t, 3, dim)
	assert.True(t, r.dimSet)

	dim2 := r.embedderDimension([]float32{1, 2, 3, 4, 5})
	assert.Equal(t, 3, dim2, "dimension must stay pinned to the first probe")
}
