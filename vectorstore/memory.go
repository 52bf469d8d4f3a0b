package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/itish2003/voicenotes/models"
)

// MemoryStore is an in-process store using brute-force cosine similarity.
// Contents are lost when the process exits.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]*memoryNamespace
}

type memoryNamespace struct {
	order   []string
	records map[string]scoredRecord
}

// NewMemoryStore creates an empty store for vectors of the given dimension.
func NewMemoryStore(dimension int) (*MemoryStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrStore, dimension)
	}
	return &MemoryStore{
		dimension:  dimension,
		namespaces: make(map[string]*memoryNamespace),
	}, nil
}

func (s *MemoryStore) Dimension() int { return s.dimension }

func (s *MemoryStore) Upsert(_ context.Context, namespace, id string, vector []float32, metadata models.NoteMetadata) (*models.UpsertAck, error) {
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = &memoryNamespace{records: make(map[string]scoredRecord)}
		s.namespaces[namespace] = ns
	}
	if _, exists := ns.records[id]; !exists {
		ns.order = append(ns.order, id)
	}
	stored := make([]float32, len(vector))
	copy(stored, vector)
	ns.records[id] = scoredRecord{id: id, vector: stored, metadata: metadata}

	return &models.UpsertAck{ID: id, Namespace: namespace, UpsertedCount: 1}, nil
}

func (s *MemoryStore) Query(_ context.Context, namespace string, vector []float32, topK int) ([]models.Match, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	return rankByCosine(s.snapshot(namespace), vector, topK), nil
}

func (s *MemoryStore) List(_ context.Context, namespace string) ([]models.Match, error) {
	records := s.snapshot(namespace)
	matches := make([]models.Match, 0, len(records))
	for _, r := range records {
		matches = append(matches, models.Match{ID: r.id, Metadata: r.metadata})
	}
	return matches, nil
}

func (s *MemoryStore) Count(_ context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ns, ok := s.namespaces[namespace]; ok {
		return len(ns.records), nil
	}
	return 0, nil
}

func (s *MemoryStore) Close() error { return nil }

// snapshot returns the namespace's records in insertion order.
func (s *MemoryStore) snapshot(namespace string) []scoredRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	records := make([]scoredRecord, 0, len(ns.order))
	for _, id := range ns.order {
		records = append(records, ns.records[id])
	}
	return records
}
