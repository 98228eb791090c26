// Package config loads and validates the environment-variable surface
// every core component is built from (§6.3).
package config

// Config is the fully-resolved, validated configuration for a ragserver
// process.
type Config struct {
	Store    StoreConfig
	Embed    EmbedConfig
	Rerank   RerankConfig
	Loader   LoaderConfig
	Retrieve RetrieveConfig
	UploadDir string
}

// StoreConfig selects and configures the vector store manager backend.
type StoreConfig struct {
	Provider    string // chroma|pgvector|qdrant|memory
	LoadLimit   int
	CheckUpdate bool

	ChromaPersistDir string
	ChromaHost       string
	ChromaPort       string
	ChromaAPIKey     string
	ChromaTenant     string
	ChromaDatabase   string

	PGHost     string
	PGPort     string
	PGDatabase string
	PGUser     string
	PGPassword string

	QdrantDSN string
}

// EmbedConfig selects and configures the embedding provider.
type EmbedConfig struct {
	Provider string // local|openai|cohere

	OpenAIModelText string
	OpenAIAPIKey    string
	OpenAIBaseURL   string

	CohereModelText  string
	CohereModelImage string
	CohereAPIKey     string

	LocalModelText  string
	LocalModelImage string
	LocalBaseURL    string

	RateLimit float64 // calls per second; cooldown = 1/RateLimit
	NeedNorm  bool
}

// RerankConfig selects and configures the rerank provider.
type RerankConfig struct {
	Provider string // local|cohere|none

	LocalModel   string
	LocalBaseURL string

	CohereModel  string
	CohereAPIKey string
}

// LoaderConfig configures chunking and HTTP fetch behavior shared by the
// file and HTML loaders.
type LoaderConfig struct {
	ChunkSize         int
	ChunkOverlap      int
	UserAgent         string
	RequestsPerSecond float64
	FetchTimeoutSec   int
	MaxBodyBytes      int64
	LoadAssets        bool
}

// RetrieveConfig configures the query pipeline's result sizing.
type RetrieveConfig struct {
	TopK            int
	TopKRerankScale int
}
