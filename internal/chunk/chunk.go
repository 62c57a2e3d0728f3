package chunk

import (
	"time"
)

// Chunk is the persisted unit of embedding and retrieval. Embedding may be
// empty when embedding failed for this chunk; such chunks are skipped by
// similarity search. CharStart/CharEnd are document-relative offsets.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	PageNumber int       `json:"page_number"`
	CharStart  int       `json:"char_start"`
	CharEnd    int       `json:"char_end"`
	Embedding  []float32 `json:"-"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}
