// Package storage is the vector store gateway: it owns the index lifecycle, bulk
// inserts of embedded chunks, and top-k retrieval.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/document"
	"github.com/mike-a-ellis/docubot/internal/logging"
)

// VectorIndex holds the chunks of at most one document. Connect replaces whatever
// was there before.
type VectorIndex interface {
	// Connect creates the index when absent or clears it when populated, then waits
	// until it reports ready.
	Connect(ctx context.Context) error
	// InsertEmbeddings embeds chunks and stores them.
	InsertEmbeddings(ctx context.Context, chunks []document.Document, embedder Embedder) error
	// Retriever attaches to the existing index. Absent or empty indexes return ErrIndexEmpty.
	Retriever(ctx context.Context, embedder Embedder, k int) (*Retriever, error)
	State(ctx context.Context) (IndexState, error)
	Health(ctx context.Context) error
	Name() string
	Close() error
}

// searcher is the per-backend half of a Retriever.
type searcher interface {
	search(ctx context.Context, vector []float32, k int) ([]document.Document, error)
}

// Retriever answers queries with the k chunks nearest to the query embedding.
type Retriever struct {
	index    searcher
	embedder Embedder
	k        int
	logger   *slog.Logger
}

func newRetriever(index searcher, embedder Embedder, k int, logger *slog.Logger) *Retriever {
	if k <= 0 {
		k = 1
	}
	return &Retriever{index: index, embedder: embedder, k: k, logger: logger}
}

// K is the number of chunks returned per query.
func (r *Retriever) K() int { return r.k }

// Retrieve embeds query and returns the nearest chunks, closest first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]document.Document, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Error("Error while embedding query", "error", err)
		return nil, fmt.Errorf("%w: embed query: %w", ErrReadFailed, err)
	}
	if len(vector) != VectorDimension {
		return nil, fmt.Errorf("%w: %w: query has %d dimensions, expected %d",
			ErrReadFailed, ErrDimensionMismatch, len(vector), VectorDimension)
	}

	docs, err := r.index.search(ctx, vector, r.k)
	if err != nil {
		r.logger.Error("Error while searching index", "error", err)
		return nil, fmt.Errorf("%w: search: %w", ErrReadFailed, err)
	}
	r.logger.Debug("Retrieved chunks", "count", len(docs))
	return docs, nil
}

// Open builds the backend selected by cfg.Index.Backend. It does not Connect.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (VectorIndex, error) {
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		return NewQdrantIndex(ctx, cfg.Index, logger)
	case config.BackendSQLite:
		return NewSQLiteIndex(cfg.SQLitePath(), cfg.Index, logger)
	case config.BackendMemory:
		return NewMemoryIndex(cfg.Index.Name, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrConnectFailed, cfg.Index.Backend)
	}
}

// embedChunks embeds the page content of every chunk and checks the result shape.
func embedChunks(ctx context.Context, chunks []document.Document, embedder Embedder) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) != VectorDimension {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), VectorDimension)
		}
	}
	return vectors, nil
}

// waitReady polls ready at a constant interval, at most attempts times.
func waitReady(ctx context.Context, attempts int, interval time.Duration, ready func(context.Context) (bool, error)) error {
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	operation := func() error {
		ok, err := ready(ctx)
		if err != nil {
			last = err
			return err
		}
		if !ok {
			last = nil
			return ErrIndexNotReady
		}
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1))
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrIndexNotReady, ctx.Err())
		}
		if last != nil {
			return fmt.Errorf("%w after %d attempts: %v", ErrIndexNotReady, attempts, last)
		}
		return fmt.Errorf("%w after %d attempts", ErrIndexNotReady, attempts)
	}
	return nil
}

// payloadMetadata keeps the scalar metadata values an index can store.
func payloadMetadata(doc document.Document) map[string]any {
	out := map[string]any{PayloadText: doc.PageContent}
	for k, v := range doc.Metadata {
		switch val := v.(type) {
		case string, bool, int64, float64:
			out[k] = val
		case int:
			out[k] = int64(val)
		case float32:
			out[k] = float64(val)
		}
	}
	return out
}

func componentLogger(logger *slog.Logger) *slog.Logger {
	return logging.Component(logger, "VectorStore")
}

// documentFromPayload is the inverse of payloadMetadata. Integer values come back as int.
func documentFromPayload(payload map[string]any) document.Document {
	doc := document.Document{Metadata: make(map[string]any, len(payload))}
	for k, v := range payload {
		if k == PayloadText {
			doc.PageContent, _ = v.(string)
			continue
		}
		if i, ok := v.(int64); ok {
			v = int(i)
		}
		doc.Metadata[k] = v
	}
	return doc
}
