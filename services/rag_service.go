package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itish2003/voicenotes/models"
	"github.com/itish2003/voicenotes/vectorstore"
)

const (
	// NotesNamespace is the vector store partition every note lives in.
	NotesNamespace = "notes"
	// QueryTopK is the number of notes retrieved per question.
	QueryTopK = 5
)

// RAGService interface defines methods for RAG operations
type RAGService interface {
	IngestNote(c context.Context, req models.IngestDataRequest) (*models.UpsertAck, error)
	QueryRAG(c context.Context, req models.QueryTextRequest) (*models.QueryRAGResponse, error)
	GetAllNotes(c context.Context) (*models.GetAllNotesResponse, error)
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	embedder  Embedder
	store     vectorstore.Store
	generator Generator
	assembler ContextAssembler
	newID     func() string
	now       func() time.Time
}

// NewRAGService creates a new RAG service instance. The embedder and the store must agree
// on the vector dimension.
func NewRAGService(embedder Embedder, store vectorstore.Store, generator Generator, assembler ContextAssembler) (RAGService, error) {
	if embedder.Dimension() != store.Dimension() {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, store expects %d",
			vectorstore.ErrDimensionMismatch, embedder.Dimension(), store.Dimension())
	}
	return &ragServiceImpl{
		embedder:  embedder,
		store:     store,
		generator: generator,
		assembler: assembler,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}, nil
}

// IngestNote embeds the note text and upserts it under a fresh id. Any failure aborts the
// ingestion; nothing is left half-written because the upsert is the only write.
func (r *ragServiceImpl) IngestNote(c context.Context, req models.IngestDataRequest) (*models.UpsertAck, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, stepError(StepValidate, fmt.Errorf("%w: text is required", ErrValidation))
	}
	log.Printf("SERVICE: Ingesting note (%d chars)", len(req.Text))

	vector, err := r.embed(c, req.Text)
	if err != nil {
		log.Printf("SERVICE: Ingestion failed at %s: %v", StepEmbed, err)
		return nil, stepError(StepEmbed, err)
	}

	id := req.ID
	if id == "" {
		id = r.newID()
	}
	ack, err := r.store.Upsert(c, NotesNamespace, id, vector, models.NoteMetadata{
		Text:       req.Text,
		Source:     req.Source,
		SourceHash: req.SourceHash,
		CreatedAt:  r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("SERVICE: Ingestion failed at %s: %v", StepUpsert, err)
		return nil, stepError(StepUpsert, err)
	}

	log.Printf("SERVICE: Successfully added note %s", id)
	return ack, nil
}

// QueryRAG runs embed, search, assemble and generate strictly in sequence. When a step
// fails the fallback response is returned together with the error.
func (r *ragServiceImpl) QueryRAG(c context.Context, req models.QueryTextRequest) (*models.QueryRAGResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, stepError(StepValidate, fmt.Errorf("%w: query is required", ErrValidation))
	}
	log.Printf("SERVICE: Querying RAG with: '%s'", req.Query)

	fail := func(step string, err error) (*models.QueryRAGResponse, error) {
		log.Printf("SERVICE: Query failed at %s: %v", step, err)
		return models.NewFallbackResponse(), stepError(step, err)
	}

	vector, err := r.embed(c, req.Query)
	if err != nil {
		return fail(StepEmbed, err)
	}

	matches, err := r.store.Query(c, NotesNamespace, vector, QueryTopK)
	if err != nil {
		return fail(StepSearch, err)
	}
	log.Printf("SERVICE-HELPER: Retrieved %d notes", len(matches))

	noteContext := r.assembler.Assemble(matches)

	answer, err := r.generator.Generate(c, noteContext, req.Query)
	if err != nil {
		return fail(StepGenerate, err)
	}

	sources := make([]models.Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, models.Source{Content: m.Metadata.Text, Score: m.Score})
	}
	return &models.QueryRAGResponse{Response: answer, Sources: sources}, nil
}

// GetAllNotes returns every note in the notes namespace using the store's native scan.
func (r *ragServiceImpl) GetAllNotes(c context.Context) (*models.GetAllNotesResponse, error) {
	log.Printf("SERVICE: Getting all notes...")

	matches, err := r.store.List(c, NotesNamespace)
	if err != nil {
		log.Printf("SERVICE: Listing notes failed: %v", err)
		return nil, stepError(StepListNotes, err)
	}
	if matches == nil {
		matches = []models.Match{}
	}

	log.Printf("SERVICE: Successfully retrieved %d notes", len(matches))
	return &models.GetAllNotesResponse{Success: true, Data: matches}, nil
}

// embed calls the embedder and enforces the index dimension on the result.
func (r *ragServiceImpl) embed(c context.Context, text string) ([]float32, error) {
	vector, err := r.embedder.Embed(c, text)
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if err := vectorstore.CheckDimension(vector, r.store.Dimension()); err != nil {
		return nil, err
	}
	return vector, nil
}
