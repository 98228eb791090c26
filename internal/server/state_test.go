package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifold/internal/config"
	"manifold/internal/embedding"
	"manifold/internal/ingest"
	"manifold/internal/retrieve"
)

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Store.Provider = "memory"
	cfg.Store.LoadLimit = 1000
	cfg.Embed.Provider = "local"
	cfg.Embed.LocalBaseURL = "http://localhost:8001/v1"
	cfg.Rerank.Provider = "none"
	cfg.Loader.ChunkSize = 500
	cfg.Loader.ChunkOverlap = 50
	cfg.Loader.UserAgent = "ragserver"
	cfg.Retrieve.TopK = 10
	cfg.Retrieve.TopKRerankScale = 5
	return cfg
}

type nopLog struct{}

func (nopLog) Warnf(string, ...any) {}
func (nopLog) Infof(string, ...any) {}

func TestNew_BuildsHealthFromConfig(t *testing.T) {
	s, err := New(context.Background(), testConfig(), nopLog{})
	require.NoError(t, err)

	storeName, embedName, rerankName := s.Health()
	assert.Equal(t, "memory", storeName)
	assert.Equal(t, "local-clip", embedName)
	assert.Equal(t, "none", rerankName)
}

func TestReload_SwapsRerankerAndReflectsInHealth(t *testing.T) {
	s, err := New(context.Background(), testConfig(), nopLog{})
	require.NoError(t, err)

	require.NoError(t, s.Reload(context.Background(), "rerank", "none"))
	_, _, rerankName := s.Health()
	assert.Equal(t, "none", rerankName)
}

func TestReload_RejectsInvalidTarget(t *testing.T) {
	s, err := New(context.Background(), testConfig(), nopLog{})
	require.NoError(t, err)

	err = s.Reload(context.Background(), "bogus", "whatever")
	assert.Error(t, err)
}

func TestReload_RejectsUnknownProviderAndKeepsOldConfig(t *testing.T) {
	s, err := New(context.Background(), testConfig(), nopLog{})
	require.NoError(t, err)

	err = s.Reload(context.Background(), "store", "not-a-real-provider")
	assert.Error(t, err)

	storeName, _, _ := s.Health()
	assert.Equal(t, "memory", storeName, "a rejected reload must not mutate the active store")
}

func TestReload_StoreToMemoryRebuildsOrchestratorAndRetriever(t *testing.T) {
	s, err := New(context.Background(), testConfig(), nopLog{})
	require.NoError(t, err)

	require.NoError(t, s.Reload(context.Background(), "store", "memory"))
	s.WithRead(func(o *ingest.Orchestrator, r *retrieve.Retriever, embedder embedding.TextEmbedder) {
		assert.NotNil(t, o)
		assert.NotNil(t, r)
		assert.NotNil(t, embedder)
	})
}
