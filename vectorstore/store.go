// Package vectorstore holds the namespaced similarity-index backends notes are stored in.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/itish2003/voicenotes/models"
)

var (
	// ErrStore wraps every transport, auth or decoding failure of a backend.
	ErrStore = errors.New("vector store error")
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Store persists (vector, metadata) records in namespaces and answers top-k queries.
type Store interface {
	// Upsert inserts or overwrites the record at id.
	Upsert(ctx context.Context, namespace, id string, vector []float32, metadata models.NoteMetadata) (*models.UpsertAck, error)

	// Query returns at most topK matches sorted by descending cosine similarity.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.Match, error)

	// List returns every record of the namespace. Listed matches carry a zero score.
	List(ctx context.Context, namespace string) ([]models.Match, error)

	// Count returns the number of records in the namespace.
	Count(ctx context.Context, namespace string) (int, error)

	// Dimension is the fixed vector length D of the index.
	Dimension() int

	Close() error
}

// CheckDimension returns ErrDimensionMismatch if vector is not exactly dim long.
func CheckDimension(vector []float32, dim int) error {
	if len(vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}

func checkTopK(topK int) error {
	if topK < 0 {
		return fmt.Errorf("%w: topK must be >= 0, got %d", ErrStore, topK)
	}
	return nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Zero-length vectors have similarity 0 with everything.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type scoredRecord struct {
	id       string
	vector   []float32
	metadata models.NoteMetadata
}

// rankByCosine scores every record against vector and keeps the topK best.
// Ties keep the input order.
func rankByCosine(records []scoredRecord, vector []float32, topK int) []models.Match {
	matches := make([]models.Match, 0, len(records))
	for _, r := range records {
		matches = append(matches, models.Match{
			ID:       r.id,
			Score:    CosineSimilarity(vector, r.vector),
			Metadata: r.metadata,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches
}
