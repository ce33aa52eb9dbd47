package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docubot/internal/config"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions"`
}

// embeddingServer answers /embeddings with vectors of length dim whose first value is
// the input position, so ordering can be asserted.
func embeddingServer(t *testing.T, dim int, seen *[]embeddingRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if seen != nil {
			*seen = append(*seen, req)
		}

		data := make([]map[string]any, len(req.Input))
		// Reverse order on the wire to check the embedder reorders by index.
		for i := range req.Input {
			vec := make([]float64, dim)
			vec[0] = float64(i)
			data[len(req.Input)-1-i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newTestEmbedder(t *testing.T, url, model string, batch int) *Embedder {
	t.Helper()
	client, err := NewClient(config.EmbeddingConfig{BaseURL: url, Model: model}, option.WithMaxRetries(0))
	require.NoError(t, err)
	return NewEmbedder(client, batch, nil)
}

func TestNewClient_HostedNeedsKey(t *testing.T) {
	_, err := NewClient(config.EmbeddingConfig{BaseURL: "https://api.openai.com/v1", Model: "text-embedding-3-small"})
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = NewClient(config.EmbeddingConfig{BaseURL: "http://localhost:8080", Model: "all-MiniLM-L6-v2"})
	assert.NoError(t, err)

	_, err = NewClient(config.EmbeddingConfig{BaseURL: "http://localhost:8080"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestEmbedDocuments_BatchesAndOrders(t *testing.T) {
	var seen []embeddingRequest
	srv := embeddingServer(t, Dimension, &seen)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, "text-embedding-3-small", 2)
	vectors, err := e.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, Dimension)
	}
	assert.Equal(t, float32(0), vectors[0][0])
	assert.Equal(t, float32(1), vectors[1][0])
	assert.Equal(t, float32(0), vectors[2][0], "third text is first of the second batch")

	require.Len(t, seen, 2)
	assert.Equal(t, []string{"a", "b"}, seen[0].Input)
	assert.Equal(t, []string{"c"}, seen[1].Input)
	require.NotNil(t, seen[0].Dimensions)
	assert.Equal(t, Dimension, *seen[0].Dimensions)
}

func TestEmbedQuery_SentenceModelOmitsDimensions(t *testing.T) {
	var seen []embeddingRequest
	srv := embeddingServer(t, Dimension, &seen)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, "all-MiniLM-L6-v2", 0)
	vec, err := e.EmbedQuery(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Len(t, vec, Dimension)

	require.Len(t, seen, 1)
	assert.Equal(t, "all-MiniLM-L6-v2", seen[0].Model)
	assert.Nil(t, seen[0].Dimensions)
}

func TestEmbedQuery_DimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, 1536, nil)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, "all-MiniLM-L6-v2", 0)
	_, err := e.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbedQuery_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, "all-MiniLM-L6-v2", 0)
	_, err := e.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestEmbedQuery_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	ok := embeddingServer(t, Dimension, nil)
	defer ok.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		ok.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, "all-MiniLM-L6-v2", 0)
	vec, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, Dimension)
	assert.Equal(t, int32(2), calls.Load())
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 2}, toFloat32([]float64{0.5, -1, 2}))
}
