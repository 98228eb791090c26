package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Config{}
	cfg.Store.Provider = "memory"
	cfg.Store.LoadLimit = 10000
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

func TestValidate_AcceptsValidConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_RejectsChunkOverlapNotLessThanChunkSize(t *testing.T) {
	cfg := validConfig()
	cfg.Loader.ChunkOverlap = cfg.Loader.ChunkSize
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_OVERLAP must be < CHUNK_SIZE")
}

func TestValidate_RejectsUnknownStoreProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Provider = "bogus"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VECTOR_STORE")
}

func TestValidate_RequiresPGFieldsForPGVector(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Provider = "pgvector"
	cfg.Store.PGHost, cfg.Store.PGDatabase, cfg.Store.PGUser, cfg.Store.PGPassword = "", "", "", ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PG_HOST")
	assert.Contains(t, err.Error(), "PG_DATABASE")
}

func TestValidate_RequiresLocalEmbedBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Embed.Provider = "local"
	cfg.Embed.LocalBaseURL = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCAL_EMBED_BASE_URL")
}

func TestValidate_AccumulatesMultipleProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Loader.ChunkSize = 0
	cfg.Retrieve.TopK = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_SIZE")
	assert.Contains(t, err.Error(), "TOPK")
}
