// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RAG backend.
type Config struct {
	Port        string `yaml:"port"`
	UploadDir   string `yaml:"upload_dir"`
	VectorDBDir string `yaml:"vectordb_dir"`
	InboxDir    string `yaml:"inbox_dir"`

	// Completion
	Completer    string `yaml:"completer"`
	GeminiAPIKey string `yaml:"-"`
	GeminiModel  string `yaml:"gemini_model"`

	// Embeddings
	Embedder           string `yaml:"embedder"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`
	OllamaURL          string `yaml:"ollama_url"`

	// OpenAI-compatible endpoints, used by the openai completer and embedder
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`

	// Vector store
	VectorStore      string `yaml:"vector_store"`
	ChromaURL        string `yaml:"chroma_url"`
	ChromaCollection string `yaml:"chroma_collection"`

	// Retrieval
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	ChunkStrategy string `yaml:"chunk_strategy"`
	TopK          int    `yaml:"top_k"`

	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	UnidocLicenseKey string        `yaml:"-"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from .env (if present), the environment and the
// YAML file named by CONFIG_FILE. YAML values override the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		VectorDBDir:        getEnv("VECTORDB_DIR", "vectordb"),
		InboxDir:           os.Getenv("INBOX_DIR"),
		Completer:          getEnv("COMPLETER", "gemini"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		Embedder:           getEnv("EMBEDDER", "local"),
		EmbeddingModel:     os.Getenv("EMBEDDING_MODEL"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 0),
		OllamaURL:          getEnv("OLLAMA_URL", "http://localhost:11434"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		VectorStore:        getEnv("VECTOR_STORE", "local"),
		ChromaURL:          getEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaCollection:   getEnv("CHROMA_COLLECTION", "minirag"),
		ChunkSize:          getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 100),
		ChunkStrategy:      getEnv("CHUNK_STRATEGY", "fixed"),
		TopK:               getEnvInt("TOP_K", 3),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		UnidocLicenseKey:   os.Getenv("UNIDOC_LICENSE_KEY"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()

	return cfg, cfg.Validate()
}

// applyFile overlays non-zero values from a YAML file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("could not read config file %s: %w", path, err)
	}
	// Decoding into the populated struct keeps env values for absent keys.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return nil
}

// applyDefaults fills in values that depend on other settings.
func (c *Config) applyDefaults() {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaultEmbeddingModels[c.Embedder]
	}
	if c.EmbeddingDimension == 0 {
		c.EmbeddingDimension = defaultEmbeddingDimensions[c.Embedder]
	}
}

var defaultEmbeddingModels = map[string]string{
	"local":  "all-MiniLM-L6-v2",
	"ollama": "nomic-embed-text:v1.5",
	"gemini": "text-embedding-004",
	"openai": "text-embedding-3-small",
}

var defaultEmbeddingDimensions = map[string]int{
	"local":  384,
	"ollama": 768,
	"gemini": 768,
	"openai": 1536,
}

// Validate checks value ranges and backend names.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension)
	}
	if err := oneOf("COMPLETER", c.Completer, "gemini", "openai"); err != nil {
		return err
	}
	if err := oneOf("EMBEDDER", c.Embedder, "local", "ollama", "gemini", "openai"); err != nil {
		return err
	}
	if err := oneOf("VECTOR_STORE", c.VectorStore, "local", "chroma"); err != nil {
		return err
	}
	if err := oneOf("CHUNK_STRATEGY", c.ChunkStrategy, "fixed", "recursive"); err != nil {
		return err
	}
	if err := oneOf("LOG_FORMAT", c.LogFormat, "text", "json"); err != nil {
		return err
	}
	if c.UploadDir == "" || c.VectorDBDir == "" {
		return errors.New("UPLOAD_DIR and VECTORDB_DIR must not be empty")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
