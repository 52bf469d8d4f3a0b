package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/itish2003/voicenotes/models"
)

const (
	chromaSourceKey     = "source"
	chromaSourceHashKey = "source_hash"
	chromaCreatedAtKey  = "created_at"
)

// ChromaStore maps every namespace onto its own cosine-space Chroma collection named
// prefix+namespace. Note text is stored as the Chroma document.
type ChromaStore struct {
	client      chromago.Client
	prefix      string
	dimension   int
	mu          sync.Mutex
	collections map[string]chromago.Collection
}

// NewChromaStore connects to the Chroma server at baseURL using the v2 API.
func NewChromaStore(baseURL, collectionPrefix string, dimension int) (*ChromaStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrStore, dimension)
	}
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create chroma client: %v", ErrStore, err)
	}
	return &ChromaStore{
		client:      client,
		prefix:      collectionPrefix,
		dimension:   dimension,
		collections: make(map[string]chromago.Collection),
	}, nil
}

func (s *ChromaStore) Dimension() int { return s.dimension }

// collection gets or creates the collection backing namespace and caches it.
func (s *ChromaStore) collection(ctx context.Context, namespace string) (chromago.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[namespace]; ok {
		return c, nil
	}

	name := s.prefix + namespace
	log.Printf("STORE: Getting or creating chroma collection '%s'...", name)
	c, err := s.client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "voice notes"),
				chromago.NewStringAttribute("namespace", namespace),
			),
		),
		chromago.WithHNSWSpaceCreate(embeddings.COSINE),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get or create collection %s: %v", ErrStore, name, err)
	}
	s.collections[namespace] = c
	return c, nil
}

func (s *ChromaStore) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata models.NoteMetadata) (*models.UpsertAck, error) {
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	c, err := s.collection(ctx, namespace)
	if err != nil {
		return nil, err
	}

	err = c.Upsert(ctx,
		chromago.WithIDs(chromago.DocumentID(id)),
		chromago.WithTexts(metadata.Text),
		chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithMetadatas(chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(chromaSourceKey, metadata.Source),
			chromago.NewStringAttribute(chromaSourceHashKey, metadata.SourceHash),
			chromago.NewStringAttribute(chromaCreatedAtKey, metadata.CreatedAt),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert record to chromadb: %v", ErrStore, err)
	}
	return &models.UpsertAck{ID: id, Namespace: namespace, UpsertedCount: 1}, nil
}

func (s *ChromaStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.Match, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK == 0 {
		return []models.Match{}, nil
	}
	c, err := s.collection(ctx, namespace)
	if err != nil {
		return nil, err
	}

	// Chroma rejects n_results larger than the collection.
	count, err := c.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count collection: %v", ErrStore, err)
	}
	if count == 0 {
		return []models.Match{}, nil
	}
	if topK > int(count) {
		topK = int(count)
	}

	results, err := c.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(topK),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, chromago.Include("distances")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chromadb: %v", ErrStore, err)
	}

	idGroups := results.GetIDGroups()
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return []models.Match{}, nil
	}

	matches := make([]models.Match, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		var text string
		if len(documentGroups) > 0 && i < len(documentGroups[0]) {
			text = documentGroups[0][i].ContentString()
		}
		var raw any
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			raw = metadataGroups[0][i]
		}
		metadata, err := decodeChromaMetadata(text, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: document %s: %v", ErrStore, id, err)
		}

		// Cosine distance is 1 - similarity.
		var score float64
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			score = 1 - float64(distanceGroups[0][i])
		}
		matches = append(matches, models.Match{ID: string(id), Score: score, Metadata: metadata})
	}
	return matches, nil
}

func (s *ChromaStore) List(ctx context.Context, namespace string) ([]models.Match, error) {
	c, err := s.collection(ctx, namespace)
	if err != nil {
		return nil, err
	}

	results, err := c.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get documents from chromadb: %v", ErrStore, err)
	}

	ids := results.GetIDs()
	documents := results.GetDocuments()
	metadatas := results.GetMetadatas()

	matches := make([]models.Match, 0, len(ids))
	for i, id := range ids {
		var text string
		if i < len(documents) {
			text = documents[i].ContentString()
		}
		var raw any
		if i < len(metadatas) {
			raw = metadatas[i]
		}
		metadata, err := decodeChromaMetadata(text, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: document %s: %v", ErrStore, id, err)
		}
		matches = append(matches, models.Match{ID: string(id), Metadata: metadata})
	}
	return matches, nil
}

func (s *ChromaStore) Count(ctx context.Context, namespace string) (int, error) {
	c, err := s.collection(ctx, namespace)
	if err != nil {
		return 0, err
	}
	count, err := c.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count items in collection: %v", ErrStore, err)
	}
	return int(count), nil
}

// Close releases resources like local embedding functions held by the client.
func (s *ChromaStore) Close() error {
	return s.client.Close()
}

// decodeChromaMetadata converts Chroma's document metadata into NoteMetadata.
// DocumentMetadata has no public accessor for its values, so it goes through JSON.
func decodeChromaMetadata(text string, raw any) (models.NoteMetadata, error) {
	metadata := models.NoteMetadata{Text: text}
	if raw == nil {
		return metadata, nil
	}

	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return models.NoteMetadata{}, fmt.Errorf("could not marshal metadata: %v", err)
	}
	var values map[string]any
	if err := json.Unmarshal(jsonBytes, &values); err != nil {
		return models.NoteMetadata{}, fmt.Errorf("could not unmarshal metadata: %v", err)
	}

	for key, dst := range map[string]*string{
		chromaSourceKey:     &metadata.Source,
		chromaSourceHashKey: &metadata.SourceHash,
		chromaCreatedAtKey:  &metadata.CreatedAt,
	} {
		v, ok := values[key]
		if !ok || v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return models.NoteMetadata{}, fmt.Errorf("metadata field %q is not a string", key)
		}
		*dst = str
	}
	return metadata, nil
}
