package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               string `yaml:"port"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	OllamaURL   string `yaml:"ollama_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeneratorConfig selects and configures the chat-completion provider.
type GeneratorConfig struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	OllamaURL        string `yaml:"ollama_url"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
}

// ChromaConfig contains connection details for a Chroma server.
type ChromaConfig struct {
	URL              string `yaml:"url"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// QdrantConfig contains connection details for a Qdrant server (gRPC port).
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// SQLiteConfig points at the local database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Type   string       `yaml:"type"`
	Chroma ChromaConfig `yaml:"chroma"`
	Qdrant QdrantConfig `yaml:"qdrant"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// ImportConfig configures the optional notes directory importer.
type ImportConfig struct {
	Dir          string `yaml:"dir"`
	Watch        bool   `yaml:"watch"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Import      ImportConfig      `yaml:"import"`

	// Secrets are only read from the environment.
	GeminiAPIKey     string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	UnidocLicenseKey string `yaml:"-"`
}

// RequestTimeout returns the per-request deadline applied to every API call.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// Load reads .env (if any), the YAML file at path (if it exists), fills in defaults and
// applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	cfg := base()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			log.Printf("CONFIG: %s not found, using defaults.", path)
		default:
			return nil, fmt.Errorf("could not read config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := base()
	applyDefaults(cfg)
	return cfg
}

// base holds the provider-independent defaults. Models, dimensions and URLs are left
// empty so applyDefaults can fill them for whichever providers end up selected.
func base() *Config {
	return &Config{
		Server:      ServerConfig{Port: "8080", RequestTimeoutSecs: 60},
		Embedder:    EmbedderConfig{Provider: "ollama", TimeoutSecs: 30},
		Generator:   GeneratorConfig{Provider: "gemini", MaxContextTokens: 3000},
		VectorStore: VectorStoreConfig{Type: "chroma"},
		Import:      ImportConfig{ChunkSize: 1000, ChunkOverlap: 100},
	}
}

// Validate rejects unknown providers and impossible values.
func (c *Config) Validate() error {
	switch c.Embedder.Provider {
	case "ollama", "gemini", "openai":
	default:
		return fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider)
	}
	switch c.Generator.Provider {
	case "ollama", "gemini", "openai":
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite", "chroma", "qdrant":
	default:
		return fmt.Errorf("unknown vector store type %q", c.VectorStore.Type)
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Import.ChunkOverlap >= c.Import.ChunkSize {
		return fmt.Errorf("import chunk_overlap (%d) must be smaller than chunk_size (%d)", c.Import.ChunkOverlap, c.Import.ChunkSize)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.UnidocLicenseKey = os.Getenv("UNIDOC_LICENSE_KEY")

	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("INDEX_PATH"); v != "" {
		cfg.Import.Dir = v
	}
	if v := os.Getenv("VECTOR_STORE"); v != "" {
		cfg.VectorStore.Type = v
	}
	if v := os.Getenv("EMBEDDER"); v != "" && v != cfg.Embedder.Provider {
		// Model and dimension belong to the provider they were configured for.
		cfg.Embedder.Provider = v
		cfg.Embedder.Model = ""
		cfg.Embedder.Dimension = 0
	}
	if v := os.Getenv("GENERATOR"); v != "" && v != cfg.Generator.Provider {
		cfg.Generator.Provider = v
		cfg.Generator.Model = ""
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.Embedder.Dimension = d
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}

	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.OllamaURL == "" {
		cfg.Embedder.OllamaURL = "http://localhost:11434"
	}
	switch cfg.Embedder.Provider {
	case "ollama":
		defaultString(&cfg.Embedder.Model, "nomic-embed-text:v1.5")
		defaultInt(&cfg.Embedder.Dimension, 768)
	case "gemini":
		defaultString(&cfg.Embedder.Model, "text-embedding-004")
		defaultInt(&cfg.Embedder.Dimension, 768)
	case "openai":
		defaultString(&cfg.Embedder.Model, "text-embedding-3-small")
		if cfg.Embedder.Model == "text-embedding-3-large" {
			defaultInt(&cfg.Embedder.Dimension, 3072)
		}
		defaultInt(&cfg.Embedder.Dimension, 1536)
	}

	if cfg.Generator.OllamaURL == "" {
		cfg.Generator.OllamaURL = cfg.Embedder.OllamaURL
	}
	switch cfg.Generator.Provider {
	case "gemini":
		defaultString(&cfg.Generator.Model, "gemini-2.5-flash")
	case "openai":
		defaultString(&cfg.Generator.Model, "gpt-3.5-turbo")
	case "ollama":
		defaultString(&cfg.Generator.Model, "llama3")
	}

	defaultString(&cfg.VectorStore.Chroma.URL, "http://localhost:8000")
	defaultString(&cfg.VectorStore.Chroma.CollectionPrefix, "voicenotes-")
	defaultString(&cfg.VectorStore.Qdrant.Host, "localhost")
	defaultInt(&cfg.VectorStore.Qdrant.Port, 6334)
	defaultString(&cfg.VectorStore.Qdrant.Collection, "voicenotes")
	defaultString(&cfg.VectorStore.SQLite.Path, "voicenotes.db")

	defaultInt(&cfg.Import.ChunkSize, 1000)
}

func defaultString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func defaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
