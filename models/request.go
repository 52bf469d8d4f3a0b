package models

type IngestDataRequest struct {
	Text string `json:"text" binding:"required"`

	// Set by the directory importer only. A non-empty ID replaces the generated one so
	// re-importing a chunk overwrites it.
	ID         string `json:"-"`
	Source     string `json:"-"`
	SourceHash string `json:"-"`
}

type QueryTextRequest struct {
	Query string `json:"query" binding:"required"`
}
