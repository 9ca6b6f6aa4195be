package entity

import (
	"time"

	"github.com/google/uuid"
)

// DocumentChunk is a stored slice of a document with its embedding.
type DocumentChunk struct {
	Id         uuid.UUID
	DocumentId uuid.UUID
	ChunkIndex int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// RetrievedChunk is a search hit. It carries the similarity score and
// enough provenance to cite the source; it is never persisted.
type RetrievedChunk struct {
	Text          string
	Score         float64
	DocumentId    uuid.UUID
	DocumentTitle string
	ChunkIndex    int
}
