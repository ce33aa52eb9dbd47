package storage

import (
	"context"

	"github.com/mike-a-ellis/docubot/internal/document"
)

// VectorDimension is the embedding size every index is created with.
const VectorDimension = 384

// Payload keys stored alongside every vector.
const (
	PayloadText       = "text"
	PayloadSource     = document.MetaSource
	PayloadChunkIndex = document.MetaChunkIndex
)

// IndexState is where an index sits in its connect lifecycle.
type IndexState int

const (
	StateAbsent IndexState = iota
	StateEmpty
	StatePopulated
)

func (s IndexState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// Embedder produces the vectors stored in and queried against an index.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
