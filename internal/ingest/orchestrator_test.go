package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifold/internal/config"
	"manifold/internal/store"
)

// fakeTextEmbedder is a deterministic, text-only TextEmbedder.
type fakeTextEmbedder struct {
	dim int
}

func (f *fakeTextEmbedder) Name() string             { return "fake" }
func (f *fakeTextEmbedder) SpaceKeyText() string      { return "fake::text::text" }
func (f *fakeTextEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f *fakeTextEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, f.dim)
	}
	return vecs, nil
}

// fakeMultiEmbedder additionally embeds images, sharing the text
// embedder's dimension.
type fakeMultiEmbedder struct {
	fakeTextEmbedder
}

func (f *fakeMultiEmbedder) SpaceKeyMulti() string { return "fake::image::image" }
func (f *fakeMultiEmbedder) EmbedTextForImageQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f *fakeMultiEmbedder) EmbedImage(_ context.Context, paths []string) ([][]float32, error) {
	vecs := make([][]float32, len(paths))
	for i := range paths {
		vecs[i] = make([]float32, f.dim)
	}
	return vecs, nil
}

func newTestOrchestrator(t *testing.T, embedder interface{}) *Orchestrator {
	t.Helper()
	backend := store.NewMemory()
	mgr := store.NewManager(backend, config.StoreConfig{LoadLimit: 1000}, nil)
	cfg := config.LoaderConfig{ChunkSize: 100, ChunkOverlap: 10, UserAgent: "test", RequestsPerSecond: 1000}

	switch e := embedder.(type) {
	case *fakeMultiEmbedder:
		return New(e, mgr, cfg)
	case *fakeTextEmbedder:
		return New(e, mgr, cfg)
	default:
		t.Fatalf("unsupported embedder type %T", embedder)
		return nil
	}
}

func TestFromPath_IngestsTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world, this is a test document."), 0o644))

	o := newTestOrchestrator(t, &fakeTextEmbedder{dim: 4})
	err := o.FromPath(context.Background(), path)
	assert.NoError(t, err)
}

func TestFromPath_TextOnlyEmbedderDropsImageDocs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pic.png"), []byte("not a real png"), 0o644))

	o := newTestOrchestrator(t, &fakeTextEmbedder{dim: 4})
	err := o.FromPath(context.Background(), dir)
	assert.NoError(t, err)

	_, imageDocs, err := o.fileLoader.Load(context.Background(), dir, o.spaceKeyText(), o.spaceKeyImage())
	require.NoError(t, err)
	assert.Empty(t, imageDocs)
}

func TestFromPathList_SkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	docA := filepath.Join(dir, "a.txt")
	docB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(docA, []byte("first document body text."), 0o644))
	require.NoError(t, os.WriteFile(docB, []byte("second document body text."), 0o644))

	listPath := filepath.Join(dir, "list.txt")
	content := "# a comment\n\n" + docA + "\n" + docB + "\n"
	require.NoError(t, os.WriteFile(listPath, []byte(content), 0o644))

	o := newTestOrchestrator(t, &fakeTextEmbedder{dim: 4})
	err := o.FromPathList(context.Background(), listPath)
	assert.NoError(t, err)

	lines, err := readListFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, []string{docA, docB}, lines)
}

func TestFromPath_MultimodalEmbedderUpsertsImages(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(imgPath, []byte("not a real png but has bytes"), 0o644))

	o := newTestOrchestrator(t, &fakeMultiEmbedder{fakeTextEmbedder{dim: 4}})
	err := o.FromPath(context.Background(), imgPath)
	assert.NoError(t, err)

	_, statErr := os.Stat(imgPath)
	assert.NoError(t, statErr, "UpsertMulti's cleanup must only remove project-prefixed temp files, not ordinary input files")

	skip, err := o.store.SkipUpdate(context.Background(), "fake::image::image", 4, imgPath)
	require.NoError(t, err)
	assert.True(t, skip, "the image source is in the image space's fingerprint cache after upsert")
}

func TestDimension_ProbedOnceAndCached(t *testing.T) {
	embedder := &fakeTextEmbedder{dim: 8}
	o := newTestOrchestrator(t, embedder)

	dim, err := o.dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, dim)
	assert.True(t, o.dimSet)

	dim2, err := o.dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, dim2)
}
