package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

const (
	SegmentBySection = "section"
	SegmentByPage    = "page"
)

type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type VectorStoreConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

type SegmentationConfig struct {
	Mode         string `yaml:"mode"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

type AgentConfig struct {
	MaxSteps        int  `yaml:"max_steps"`
	SimilarityLimit int  `yaml:"similarity_limit"`
	Parallel        bool `yaml:"parallel"`
}

type Config struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Neo4jURI    string `yaml:"neo4j_uri"`
	Neo4jUser   string `yaml:"neo4j_username"`
	Neo4jPass   string `yaml:"neo4j_password"`

	// GraphEnabled toggles the neo4j filing graph; ingestion and retrieval work without it.
	GraphEnabled bool `yaml:"graph_enabled"`

	DataDir  string `yaml:"data_dir"`
	HTTPAddr string `yaml:"http_addr"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	GeminiAPIKey  string `yaml:"-"`

	LLM          LLMConfig          `yaml:"llm"`
	Embeddings   EmbeddingConfig    `yaml:"embeddings"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Agent        AgentConfig        `yaml:"agent"`
}

func Load() Config {
	return Config{
		PostgresDSN:  getEnv("POSTGRES_DSN", "postgres://localhost:5432/filing-agent?sslmode=disable"),
		Neo4jURI:     getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:    getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:    getEnv("NEO4J_PASSWORD", "password"),
		GraphEnabled: getEnvBool("GRAPH_ENABLED", false),

		DataDir:  getEnv("DATA_DIR", "./documents"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),

		LLM: LLMConfig{
			Provider:          strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
			Model:             getEnv("LLM_MODEL", "llama3.1:8b"),
			RequestsPerSecond: getEnvFloat("LLM_REQUESTS_PER_SECOND", 0),
		},
		Embeddings: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", ProviderOllama)),
			Model:     getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},
		VectorStore: VectorStoreConfig{
			Backend:    strings.ToLower(getEnv("VECTOR_STORE", BackendPostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "./filing_store.db"),
		},
		Segmentation: SegmentationConfig{
			Mode:         strings.ToLower(getEnv("SEGMENT_MODE", SegmentByPage)),
			ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 100),
		},
		Agent: AgentConfig{
			MaxSteps:        getEnvInt("AGENT_MAX_STEPS", 15),
			SimilarityLimit: getEnvInt("AGENT_SIMILARITY_LIMIT", 5),
			Parallel:        getEnvBool("AGENT_PARALLEL", false),
		},
	}
}

// LoadFile overlays the YAML file at path onto base. Fields absent from the
// file keep their base values. A missing file is not an error.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return base, fmt.Errorf("read config file: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.Embeddings.Provider = strings.ToLower(cfg.Embeddings.Provider)
	cfg.VectorStore.Backend = strings.ToLower(cfg.VectorStore.Backend)
	cfg.Segmentation.Mode = strings.ToLower(cfg.Segmentation.Mode)
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Segmentation.Mode {
	case SegmentBySection, SegmentByPage:
	default:
		return fmt.Errorf("unknown segment mode: %s", c.Segmentation.Mode)
	}
	switch c.VectorStore.Backend {
	case BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown vector store backend: %s", c.VectorStore.Backend)
	}
	if c.Segmentation.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.Segmentation.ChunkOverlap < 0 || c.Segmentation.ChunkOverlap >= c.Segmentation.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size)")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent max steps must be positive")
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
