package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/itish2003/voicenotes/models"
)

// SQLiteStore keeps notes in a local SQLite file and searches them by brute-force cosine
// similarity. The table doubles as an authoritative note registry: List is a plain scan in
// insertion order.
type SQLiteStore struct {
	conn      *sql.DB
	path      string
	dimension int
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrStore, dimension)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create database directory: %v", ErrStore, err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStore, err)
	}
	// A single connection keeps writes serialized and makes ":memory:" usable.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn, path: path, dimension: dimension}
	if err := s.setupTables(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) setupTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			source_hash TEXT NOT NULL DEFAULT '',
			embedding TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT '',
			UNIQUE(namespace, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_namespace ON notes(namespace)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("%w: failed to execute query: %s, error: %v", ErrStore, query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Dimension() int { return s.dimension }

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata models.NoteMetadata) (*models.UpsertAck, error) {
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	embeddingJSON, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal embedding: %v", ErrStore, err)
	}

	query := `INSERT INTO notes (namespace, id, text, source, source_hash, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET
			text = excluded.text,
			source = excluded.source,
			source_hash = excluded.source_hash,
			embedding = excluded.embedding,
			created_at = excluded.created_at`
	if _, err := s.conn.ExecContext(ctx, query, namespace, id, metadata.Text, metadata.Source, metadata.SourceHash, string(embeddingJSON), metadata.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: failed to upsert note %s: %v", ErrStore, id, err)
	}

	return &models.UpsertAck{ID: id, Namespace: namespace, UpsertedCount: 1}, nil
}

func (s *SQLiteStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.Match, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	if err := CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	records, err := s.load(ctx, namespace, true)
	if err != nil {
		return nil, err
	}
	return rankByCosine(records, vector, topK), nil
}

func (s *SQLiteStore) List(ctx context.Context, namespace string) ([]models.Match, error) {
	records, err := s.load(ctx, namespace, false)
	if err != nil {
		return nil, err
	}
	matches := make([]models.Match, 0, len(records))
	for _, r := range records {
		matches = append(matches, models.Match{ID: r.id, Metadata: r.metadata})
	}
	return matches, nil
}

func (s *SQLiteStore) Count(ctx context.Context, namespace string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE namespace = ?`, namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count notes: %v", ErrStore, err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) load(ctx context.Context, namespace string, withEmbeddings bool) ([]scoredRecord, error) {
	// created_at is read as text so the driver does not turn it into a time.Time.
	columns := `id, text, source, source_hash, CAST(created_at AS TEXT)`
	if withEmbeddings {
		columns += `, embedding`
	}
	query := `SELECT ` + columns + ` FROM notes WHERE namespace = ? ORDER BY seq`
	rows, err := s.conn.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query notes: %v", ErrStore, err)
	}
	defer rows.Close()

	var records []scoredRecord
	for rows.Next() {
		var (
			r             scoredRecord
			createdAt     sql.NullString
			embeddingJSON string
		)
		dest := []any{&r.id, &r.metadata.Text, &r.metadata.Source, &r.metadata.SourceHash, &createdAt}
		if withEmbeddings {
			dest = append(dest, &embeddingJSON)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %v", ErrStore, err)
		}
		r.metadata.CreatedAt = createdAt.String
		if withEmbeddings {
			if err := json.Unmarshal([]byte(embeddingJSON), &r.vector); err != nil {
				return nil, fmt.Errorf("%w: failed to unmarshal embedding for note %s: %v", ErrStore, r.id, err)
			}
			if len(r.vector) != s.dimension {
				return nil, fmt.Errorf("%w: stored note %s has %d dimensions, index has %d", ErrDimensionMismatch, r.id, len(r.vector), s.dimension)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating rows: %v", ErrStore, err)
	}
	return records, nil
}
