package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms/ollama"
	"google.golang.org/genai"

	"github.com/itish2003/voicenotes/config"
	"github.com/itish2003/voicenotes/services"
	"github.com/itish2003/voicenotes/vectorstore"
)

// app holds the long-lived clients built from the configuration.
type app struct {
	cfg        *config.Config
	store      vectorstore.Store
	ragService services.RAGService
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("Warning: Failed to close vector store: %v", err)
	}
}

func (a *app) importer() *services.FileIndexingService {
	return services.NewFileIndexingService(a.ragService, a.store, a.cfg.Import.ChunkSize, a.cfg.Import.ChunkOverlap)
}

// buildApp creates the embedder, vector store and generator selected by cfg and wires
// them into the RAG service.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var geminiClient *genai.Client
	gemini := func() (*genai.Client, error) {
		if geminiClient != nil {
			return geminiClient, nil
		}
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is not set")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		log.Println("Successfully connected to Google Gemini.")
		geminiClient = client
		return client, nil
	}

	var openaiClient *openai.Client
	openAI := func() (*openai.Client, error) {
		if openaiClient == nil {
			if cfg.OpenAIAPIKey == "" {
				return nil, errors.New("OPENAI_API_KEY is not set")
			}
			openaiClient = openai.NewClient(cfg.OpenAIAPIKey)
		}
		return openaiClient, nil
	}

	embedder, err := newEmbedder(cfg.Embedder, gemini, openAI)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(cfg.Generator, gemini, openAI)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg.VectorStore, cfg.Embedder.Dimension)
	if err != nil {
		return nil, err
	}

	assembler := services.NewContextAssembler(cfg.Generator.MaxContextTokens, cfg.Generator.Model)
	ragService, err := services.NewRAGService(embedder, store, generator, assembler)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: store, ragService: ragService}, nil
}

func newEmbedder(cfg config.EmbedderConfig, gemini func() (*genai.Client, error), openAI func() (*openai.Client, error)) (services.Embedder, error) {
	log.Printf("CONFIG: Embedder %s (%s, %d dimensions)", cfg.Provider, cfg.Model, cfg.Dimension)
	switch cfg.Provider {
	case "ollama":
		httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}
		return services.NewOllamaEmbedder(httpClient, cfg.OllamaURL, cfg.Model, cfg.Dimension), nil
	case "gemini":
		client, err := gemini()
		if err != nil {
			return nil, err
		}
		return services.NewGeminiEmbedder(client, cfg.Model, cfg.Dimension), nil
	case "openai":
		client, err := openAI()
		if err != nil {
			return nil, err
		}
		return services.NewOpenAIEmbedder(client, cfg.Model, cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

func newGenerator(cfg config.GeneratorConfig, gemini func() (*genai.Client, error), openAI func() (*openai.Client, error)) (services.Generator, error) {
	log.Printf("CONFIG: Generator %s (%s)", cfg.Provider, cfg.Model)
	switch cfg.Provider {
	case "gemini":
		client, err := gemini()
		if err != nil {
			return nil, err
		}
		return services.NewGeminiGenerator(client, cfg.Model), nil
	case "openai":
		client, err := openAI()
		if err != nil {
			return nil, err
		}
		return services.NewOpenAIGenerator(client, cfg.Model), nil
	case "ollama":
		llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.OllamaURL))
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return services.NewLangchainGenerator(llm, "ollama/"+cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

func newStore(ctx context.Context, cfg config.VectorStoreConfig, dimension int) (vectorstore.Store, error) {
	log.Printf("CONFIG: Vector store %s", cfg.Type)
	switch cfg.Type {
	case "memory":
		return vectorstore.NewMemoryStore(dimension)
	case "sqlite":
		store, err := vectorstore.NewSQLiteStore(cfg.SQLite.Path, dimension)
		if err != nil {
			return nil, err
		}
		log.Printf("STORE: Using sqlite database %s", store.Path())
		return store, nil
	case "chroma":
		return vectorstore.NewChromaStore(cfg.Chroma.URL, cfg.Chroma.CollectionPrefix, dimension)
	case "qdrant":
		return vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
		}, dimension)
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.Type)
	}
}
