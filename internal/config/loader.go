package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"manifold/internal/ragerr"
)

// Load reads configuration from environment variables (optionally .env),
// applies defaults, and validates the result.
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment
	// variables, matching the teacher's development-first precedence.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Store.Provider = strFromEnv("VECTOR_STORE", "chroma")
	cfg.Store.LoadLimit = intFromEnv("LOAD_LIMIT", 10000)
	cfg.Store.CheckUpdate = boolFromEnv("CHECK_UPDATE", false)
	cfg.Store.ChromaPersistDir = strFromEnv("CHROMA_PERSIST_DIR", "chroma_db")
	cfg.Store.ChromaHost = strFromEnv("CHROMA_HOST", "")
	cfg.Store.ChromaPort = strFromEnv("CHROMA_PORT", "")
	cfg.Store.ChromaAPIKey = strFromEnv("CHROMA_API_KEY", "")
	cfg.Store.ChromaTenant = strFromEnv("CHROMA_TENANT", "")
	cfg.Store.ChromaDatabase = strFromEnv("CHROMA_DATABASE", "")
	cfg.Store.PGHost = strFromEnv("PG_HOST", "localhost")
	cfg.Store.PGPort = strFromEnv("PG_PORT", "5432")
	cfg.Store.PGDatabase = strFromEnv("PG_DATABASE", "ragserver")
	cfg.Store.PGUser = strFromEnv("PG_USER", "ragserver")
	cfg.Store.PGPassword = strFromEnv("PG_PASSWORD", "ragserver")
	cfg.Store.QdrantDSN = strFromEnv("QDRANT_DSN", "http://localhost:6334")

	cfg.Embed.Provider = strFromEnv("EMBED_PROVIDER", "local")
	cfg.Embed.OpenAIModelText = strFromEnv("OPENAI_EMBED_MODEL_TEXT", "text-embedding-3-small")
	cfg.Embed.OpenAIAPIKey = strFromEnv("OPENAI_API_KEY", "")
	cfg.Embed.OpenAIBaseURL = strFromEnv("OPENAI_BASE_URL", "https://api.openai.com")
	cfg.Embed.CohereModelText = strFromEnv("COHERE_EMBED_MODEL_TEXT", "embed-v4.0")
	cfg.Embed.CohereModelImage = strFromEnv("COHERE_EMBED_MODEL_IMAGE", "embed-v4.0")
	cfg.Embed.CohereAPIKey = strFromEnv("COHERE_API_KEY", "")
	cfg.Embed.LocalModelText = strFromEnv("LOCAL_EMBED_MODEL_TEXT", "openai/clip-vit-base-patch32")
	cfg.Embed.LocalModelImage = strFromEnv("LOCAL_EMBED_MODEL_IMAGE", "openai/clip-vit-base-patch32")
	cfg.Embed.LocalBaseURL = strFromEnv("LOCAL_EMBED_BASE_URL", "http://localhost:8001/v1")
	cfg.Embed.RateLimit = floatFromEnv("EMBED_RATE_LIMIT", 2.0)
	cfg.Embed.NeedNorm = boolFromEnv("EMBED_NEED_NORM", true)

	cfg.Rerank.Provider = strFromEnv("RERANK_PROVIDER", "local")
	cfg.Rerank.LocalModel = strFromEnv("LOCAL_RERANK_MODEL", "BAAI/bge-reranker-v2-m3")
	cfg.Rerank.LocalBaseURL = strFromEnv("LOCAL_RERANK_BASE_URL", "http://localhost:8002/v1")
	cfg.Rerank.CohereModel = strFromEnv("COHERE_RERANK_MODEL", "rerank-multilingual-v3.0")
	cfg.Rerank.CohereAPIKey = strFromEnv("COHERE_API_KEY", "")

	cfg.Loader.ChunkSize = intFromEnv("CHUNK_SIZE", 500)
	cfg.Loader.ChunkOverlap = intFromEnv("CHUNK_OVERLAP", 50)
	cfg.Loader.UserAgent = strFromEnv("USER_AGENT", "ragserver")
	cfg.Loader.RequestsPerSecond = floatFromEnv("REQUESTS_PER_SECOND", 2.0)
	cfg.Loader.FetchTimeoutSec = intFromEnv("FETCH_TIMEOUT_SECONDS", 30)
	cfg.Loader.MaxBodyBytes = int64(intFromEnv("FETCH_MAX_BODY_BYTES", 100*1024*1024))
	cfg.Loader.LoadAssets = boolFromEnv("LOAD_ASSETS", true)

	cfg.Retrieve.TopK = intFromEnv("TOPK", 10)
	cfg.Retrieve.TopKRerankScale = intFromEnv("TOPK_RERANK_SCALE", 5)

	cfg.UploadDir = strFromEnv("UPLOAD_DIR", "upload")

	if err := Validate(cfg); err != nil {
		return Config{}, ragerr.NewConfigError("load config", err)
	}
	return cfg, nil
}

// Validate accumulates every failed rule rather than stopping at the
// first, matching the teacher's report-everything validation style.
func Validate(cfg Config) error {
	var problems []string

	check := func(cond bool, msg string) {
		if !cond {
			problems = append(problems, msg)
		}
	}

	check(cfg.Store.LoadLimit > 0, "LOAD_LIMIT must be > 0")
	check(cfg.Loader.ChunkSize > 0, "CHUNK_SIZE must be > 0")
	check(cfg.Loader.ChunkOverlap >= 0, "CHUNK_OVERLAP must be >= 0")
	check(cfg.Loader.ChunkOverlap < cfg.Loader.ChunkSize, "CHUNK_OVERLAP must be < CHUNK_SIZE")
	check(cfg.Retrieve.TopK > 0, "TOPK must be > 0")
	check(cfg.Retrieve.TopKRerankScale > 0, "TOPK_RERANK_SCALE must be > 0")
	check(strings.TrimSpace(cfg.Loader.UserAgent) != "", "USER_AGENT must be non-empty")

	switch cfg.Store.Provider {
	case "chroma", "pgvector", "qdrant", "memory":
	default:
		problems = append(problems, fmt.Sprintf("VECTOR_STORE %q is not one of chroma|pgvector|qdrant|memory", cfg.Store.Provider))
	}
	if cfg.Store.Provider == "pgvector" {
		check(cfg.Store.PGHost != "", "PG_HOST must be non-empty when VECTOR_STORE=pgvector")
		check(cfg.Store.PGDatabase != "", "PG_DATABASE must be non-empty when VECTOR_STORE=pgvector")
		check(cfg.Store.PGUser != "", "PG_USER must be non-empty when VECTOR_STORE=pgvector")
		check(cfg.Store.PGPassword != "", "PG_PASSWORD must be non-empty when VECTOR_STORE=pgvector")
	}

	switch cfg.Embed.Provider {
	case "local", "openai", "cohere":
	default:
		problems = append(problems, fmt.Sprintf("EMBED_PROVIDER %q is not one of local|openai|cohere", cfg.Embed.Provider))
	}
	if cfg.Embed.Provider == "local" {
		check(cfg.Embed.LocalBaseURL != "", "LOCAL_EMBED_BASE_URL must be non-empty when EMBED_PROVIDER=local")
	}

	switch cfg.Rerank.Provider {
	case "local", "cohere", "none":
	default:
		problems = append(problems, fmt.Sprintf("RERANK_PROVIDER %q is not one of local|cohere|none", cfg.Rerank.Provider))
	}
	if cfg.Rerank.Provider == "local" {
		check(cfg.Rerank.LocalBaseURL != "", "LOCAL_RERANK_BASE_URL must be non-empty when RERANK_PROVIDER=local")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func strFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	return def
}
