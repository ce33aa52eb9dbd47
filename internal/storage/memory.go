package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mike-a-ellis/docubot/internal/document"
)

// MemoryIndex is an in-process index with brute-force cosine search. Nothing survives
// a restart.
type MemoryIndex struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	created bool
	points  []memoryPoint
}

type memoryPoint struct {
	id      string
	vector  []float32
	payload map[string]any
}

// NewMemoryIndex creates an absent in-memory index.
func NewMemoryIndex(name string, logger *slog.Logger) *MemoryIndex {
	return &MemoryIndex{name: name, logger: componentLogger(logger).With("index", name)}
}

func (m *MemoryIndex) Name() string { return m.name }

func (m *MemoryIndex) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		m.created = true
		m.logger.Info("Index created", "dimension", VectorDimension)
	} else if len(m.points) > 0 {
		m.logger.Info("Clearing existing index", "points", len(m.points))
		m.points = nil
	}
	return nil
}

func (m *MemoryIndex) InsertEmbeddings(ctx context.Context, chunks []document.Document, embedder Embedder) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := embedChunks(ctx, chunks, embedder)
	if err != nil {
		m.logger.Error("Error while inserting embeddings", "error", err)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return fmt.Errorf("%w: index %s does not exist", ErrWriteFailed, m.name)
	}
	for i, c := range chunks {
		m.points = append(m.points, memoryPoint{
			id:      uuid.NewString(),
			vector:  vectors[i],
			payload: payloadMetadata(c),
		})
	}
	m.logger.Info("Embeddings inserted", "chunks", len(chunks))
	return nil
}

func (m *MemoryIndex) Retriever(ctx context.Context, embedder Embedder, k int) (*Retriever, error) {
	state, err := m.State(ctx)
	if err != nil {
		return nil, err
	}
	if state != StatePopulated {
		m.logger.Warn("No document has been indexed yet", "state", state.String())
		return nil, ErrIndexEmpty
	}
	return newRetriever(m, embedder, k, m.logger), nil
}

func (m *MemoryIndex) State(ctx context.Context) (IndexState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case !m.created:
		return StateAbsent, nil
	case len(m.points) == 0:
		return StateEmpty, nil
	default:
		return StatePopulated, nil
	}
}

func (m *MemoryIndex) Health(ctx context.Context) error { return nil }

func (m *MemoryIndex) Close() error { return nil }

func (m *MemoryIndex) search(ctx context.Context, vector []float32, k int) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		score float64
		idx   int
	}
	hits := make([]scored, len(m.points))
	for i, p := range m.points {
		hits[i] = scored{score: cosine(vector, p.vector), idx: i}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if k > len(hits) {
		k = len(hits)
	}
	docs := make([]document.Document, k)
	for i := 0; i < k; i++ {
		docs[i] = documentFromPayload(m.points[hits[i].idx].payload)
	}
	return docs, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
