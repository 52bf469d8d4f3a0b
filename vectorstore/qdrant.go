package vectorstore

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/itish2003/voicenotes/models"
)

const (
	qdrantNamespaceKey  = "namespace"
	qdrantTextKey       = "text"
	qdrantSourceKey     = "source"
	qdrantSourceHashKey = "source_hash"
	qdrantCreatedAtKey  = "created_at"
	qdrantNoteIDKey     = "note_id"

	qdrantScrollPage = 256
)

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantStore keeps every namespace in a single cosine collection. The namespace is a
// payload field that every read filters on. Point ids are UUIDs derived from namespace and
// note id, and the note id itself is kept in the payload.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore connects over gRPC and creates the collection if it is missing.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, dimension int) (*QdrantStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrStore, dimension)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create qdrant client: %v", ErrStore, err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection, dimension: dimension}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: failed to check collection %s: %v", ErrStore, s.collection, err)
	}
	if exists {
		log.Printf("STORE: Using existing qdrant collection '%s'", s.collection)
		return nil
	}

	log.Printf("STORE: Creating qdrant collection '%s' (dimension %d, cosine)", s.collection, s.dimension)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create collection %s: %v", ErrStore, s.collection, err)
	}
	return nil
}

func (s *QdrantStore) Dimension() int { return s.dimension }

func (s *QdrantStore) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata models.NoteMetadata) (*models.UpsertAck, error) {
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}

	payload, err := qdrant.TryValueMap(map[string]any{
		qdrantNamespaceKey:  namespace,
		qdrantTextKey:       metadata.Text,
		qdrantSourceKey:     metadata.Source,
		qdrantSourceHashKey: metadata.SourceHash,
		qdrantCreatedAtKey:  metadata.CreatedAt,
		qdrantNoteIDKey:     id,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid payload for point %s: %v", ErrStore, id, err)
	}

	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(qdrantPointID(namespace, id)),
				Vectors: qdrant.NewVectors(vector...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert point %s: %v", ErrStore, id, err)
	}
	return &models.UpsertAck{ID: id, Namespace: namespace, UpsertedCount: 1}, nil
}

func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.Match, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK == 0 {
		return []models.Match{}, nil
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         namespaceFilter(namespace),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query collection %s: %v", ErrStore, s.collection, err)
	}

	matches := make([]models.Match, 0, len(points))
	for _, p := range points {
		metadata, err := decodeQdrantPayload(p.GetPayload())
		if err != nil {
			return nil, fmt.Errorf("%w: point %s: %v", ErrStore, p.GetId().GetUuid(), err)
		}
		matches = append(matches, models.Match{
			ID:       qdrantNoteID(p.GetId(), p.GetPayload()),
			Score:    float64(p.GetScore()),
			Metadata: metadata,
		})
	}
	return matches, nil
}

// List pages through the namespace with the scroll API.
func (s *QdrantStore) List(ctx context.Context, namespace string) ([]models.Match, error) {
	var (
		matches []models.Match
		offset  *qdrant.PointId
	)
	limit := uint32(qdrantScrollPage)
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         namespaceFilter(namespace),
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scroll collection %s: %v", ErrStore, s.collection, err)
		}
		for _, p := range points {
			metadata, err := decodeQdrantPayload(p.GetPayload())
			if err != nil {
				return nil, fmt.Errorf("%w: point %s: %v", ErrStore, p.GetId().GetUuid(), err)
			}
			matches = append(matches, models.Match{ID: qdrantNoteID(p.GetId(), p.GetPayload()), Metadata: metadata})
		}
		if next == nil {
			break
		}
		offset = next
	}
	if matches == nil {
		matches = []models.Match{}
	}
	return matches, nil
}

func (s *QdrantStore) Count(ctx context.Context, namespace string) (int, error) {
	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         namespaceFilter(namespace),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count collection %s: %v", ErrStore, s.collection, err)
	}
	return int(count), nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func namespaceFilter(namespace string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(qdrantNamespaceKey, namespace)},
	}
}

// decodeQdrantPayload maps a point payload onto NoteMetadata. Missing keys decode to ""
// but a key holding a non-string value is an error.
func decodeQdrantPayload(payload map[string]*qdrant.Value) (models.NoteMetadata, error) {
	var metadata models.NoteMetadata
	fields := []struct {
		key string
		dst *string
	}{
		{qdrantTextKey, &metadata.Text},
		{qdrantSourceKey, &metadata.Source},
		{qdrantSourceHashKey, &metadata.SourceHash},
		{qdrantCreatedAtKey, &metadata.CreatedAt},
	}
	for _, f := range fields {
		v, ok := payload[f.key]
		if !ok || v == nil {
			continue
		}
		sv, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			return models.NoteMetadata{}, fmt.Errorf("payload field %q is not a string", f.key)
		}
		*f.dst = sv.StringValue
	}
	return metadata, nil
}

// qdrantPointID maps a note id onto the UUID point id Qdrant requires. The same note id in
// two namespaces yields two points.
func qdrantPointID(namespace, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(namespace+"/"+id)).String()
}

func qdrantNoteID(pointID *qdrant.PointId, payload map[string]*qdrant.Value) string {
	if v, ok := payload[qdrantNoteIDKey]; ok {
		if sv, ok := v.GetKind().(*qdrant.Value_StringValue); ok && sv.StringValue != "" {
			return sv.StringValue
		}
	}
	return pointID.GetUuid()
}
