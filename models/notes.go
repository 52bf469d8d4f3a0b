package models

// NoteMetadata is the payload stored next to every vector.
// Source and SourceHash are only set for notes created by the directory importer.
type NoteMetadata struct {
	Text       string `json:"text"`
	Source     string `json:"source,omitempty"`
	SourceHash string `json:"source_hash,omitempty"`
	// CreatedAt is the RFC 3339 time the note was ingested.
	CreatedAt string `json:"createdAt,omitempty"`
}

// Match is a single record returned by a similarity query or a listing.
type Match struct {
	ID       string       `json:"id"`
	Score    float64      `json:"score"`
	Metadata NoteMetadata `json:"metadata"`
}

// Source is a retrieved note as shown next to a generated answer.
type Source struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// UpsertAck is the vector store's acknowledgment of a write.
type UpsertAck struct {
	ID            string `json:"id"`
	Namespace     string `json:"namespace"`
	UpsertedCount int    `json:"upsertedCount"`
}

// GetAllNotesResponse is the structure for the response of the GET /notes endpoint.
type GetAllNotesResponse struct {
	Success bool    `json:"success"`
	Data    []Match `json:"data"`
}

// LegacyNote is a listed note in the shape the original mobile client renders:
// the note text lives under metadata.content.
type LegacyNote struct {
	ID       string             `json:"id"`
	Score    float64            `json:"score"`
	Metadata LegacyNoteMetadata `json:"metadata"`
}

type LegacyNoteMetadata struct {
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// LegacyNotesResponse is the body of GET /api/get-notes.
type LegacyNotesResponse struct {
	Success bool         `json:"success"`
	Data    []LegacyNote `json:"data"`
}

// NewLegacyNotesResponse converts a notes listing to the legacy shape.
func NewLegacyNotesResponse(resp *GetAllNotesResponse) *LegacyNotesResponse {
	data := make([]LegacyNote, 0, len(resp.Data))
	for _, m := range resp.Data {
		data = append(data, LegacyNote{
			ID:    m.ID,
			Score: m.Score,
			Metadata: LegacyNoteMetadata{
				Content:   m.Metadata.Text,
				CreatedAt: m.Metadata.CreatedAt,
			},
		})
	}
	return &LegacyNotesResponse{Success: resp.Success, Data: data}
}
