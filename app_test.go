package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/itish2003/voicenotes/config"
	"github.com/itish2003/voicenotes/models"
	"github.com/itish2003/voicenotes/services"
	"github.com/itish2003/voicenotes/vectorstore"
)

func noGemini() (*genai.Client, error) { return nil, assert.AnError }
func noOpenAI() (*openai.Client, error) { return nil, assert.AnError }

func TestNewStoreLocalBackends(t *testing.T) {
	ctx := context.Background()

	mem, err := newStore(ctx, config.VectorStoreConfig{Type: "memory"}, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, mem.Dimension())

	sqlite, err := newStore(ctx, config.VectorStoreConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "notes.db")},
	}, 8)
	require.NoError(t, err)
	defer sqlite.Close()
	assert.Equal(t, 8, sqlite.Dimension())

	_, err = newStore(ctx, config.VectorStoreConfig{Type: "pinecone"}, 8)
	assert.Error(t, err)
}

func TestNewEmbedderAndGenerator(t *testing.T) {
	embedder, err := newEmbedder(config.EmbedderConfig{
		Provider:    "ollama",
		Model:       "nomic-embed-text:v1.5",
		Dimension:   768,
		OllamaURL:   "http://localhost:11434",
		TimeoutSecs: 30,
	}, noGemini, noOpenAI)
	require.NoError(t, err)
	assert.IsType(t, &services.OllamaEmbedder{}, embedder)
	assert.Equal(t, 768, embedder.Dimension())

	_, err = newEmbedder(config.EmbedderConfig{Provider: "gemini"}, noGemini, noOpenAI)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = newGenerator(config.GeneratorConfig{Provider: "openai"}, noGemini, noOpenAI)
	assert.ErrorIs(t, err, assert.AnError)

	generator, err := newGenerator(config.GeneratorConfig{
		Provider:  "ollama",
		Model:     "llama3",
		OllamaURL: "http://localhost:11434",
	}, noGemini, noOpenAI)
	require.NoError(t, err)
	assert.IsType(t, &services.LangchainGenerator{}, generator)
}

func TestBuildAppRequiresAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"
	cfg.Generator.Provider = "gemini"
	cfg.GeminiAPIKey = ""

	_, err := buildApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestBuildAppWithLocalProviders(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"
	cfg.Generator.Provider = "ollama"
	cfg.Generator.Model = "llama3"

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	notes, err := a.ragService.GetAllNotes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notes.Data)
	assert.NotNil(t, a.importer())
}

// blockingRAGService holds every ingestion until its context is cancelled.
type blockingRAGService struct {
	services.RAGService
	entered chan struct{}
	exited  atomic.Bool
}

func (s *blockingRAGService) IngestNote(ctx context.Context, _ models.IngestDataRequest) (*models.UpsertAck, error) {
	close(s.entered)
	<-ctx.Done()
	s.exited.Store(true)
	return nil, ctx.Err()
}

func TestServeWaitsForImporter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memo.txt"), []byte("call the bank"), 0o644))

	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Import.Dir = dir
	store, err := vectorstore.NewMemoryStore(8)
	require.NoError(t, err)
	svc := &blockingRAGService{entered: make(chan struct{})}
	a := &app{cfg: cfg, store: store, ragService: svc}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, a) }()

	select {
	case <-svc.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("importer never started")
	}
	cancel()

	require.NoError(t, <-errCh)
	assert.True(t, svc.exited.Load())
}
