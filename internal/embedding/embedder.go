package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/mike-a-ellis/docubot/internal/logging"
)

const (
	// Dimension is the length of every vector the embedder returns. It matches the
	// all-MiniLM-L6-v2 sentence model and the index schema.
	Dimension = 384

	// DefaultBatchSize keeps single requests well below provider input limits.
	DefaultBatchSize = 500
)

// Embedder turns text into Dimension-length vectors.
// It batches requests and backs off exponentially on rate limit errors.
type Embedder struct {
	client    *Client
	batchSize int
	logger    *slog.Logger
}

// NewEmbedder creates an Embedder. If batchSize is 0, DefaultBatchSize is used.
func NewEmbedder(client *Client, batchSize int, logger *slog.Logger) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		batchSize: batchSize,
		logger:    logging.Component(logger, "Embeddings"),
	}
}

// EmbedDocuments embeds texts in order, one vector per text.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		vectors, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			e.logger.Error("Error while embedding batch", "from", i, "to", end, "error", err)
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}

	e.logger.Debug("Embedded documents", "count", len(all), "model", e.client.model)
	return all, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatchWithRetry(ctx, []string{text})
	if err != nil {
		e.logger.Error("Error while embedding query", "error", err)
		return nil, err
	}
	return vectors[0], nil
}

// embedBatchWithRetry retries HTTP 429 with exponential backoff; any other error is permanent.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.client.model),
	}
	// Only the text-embedding-3 family accepts a requested output size.
	if strings.HasPrefix(e.client.model, "text-embedding-3") {
		params.Dimensions = openai.Int(Dimension)
	}

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrModelUnavailable, err))
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d embeddings for %d inputs",
				ErrModelUnavailable, len(resp.Data), len(texts)))
		}

		out := make([][]float32, len(texts))
		for _, data := range resp.Data {
			if len(data.Embedding) != Dimension {
				return backoff.Permanent(fmt.Errorf("%w: got %d, want %d",
					ErrDimensionMismatch, len(data.Embedding), Dimension))
			}
			if data.Index < 0 || int(data.Index) >= len(out) {
				return backoff.Permanent(fmt.Errorf("%w: embedding index %d out of range",
					ErrModelUnavailable, data.Index))
			}
			out[data.Index] = toFloat32(data.Embedding)
		}
		vectors = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if isRateLimitError(err) {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return nil, err
	}
	return vectors, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 values to the float32 the index stores.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
