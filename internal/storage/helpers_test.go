package storage

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docubot/internal/document"
)

// wordEmbedder hashes lower-cased words into VectorDimension buckets, so texts that
// share words end up close under cosine similarity.
type wordEmbedder struct {
	dim int
}

func (e wordEmbedder) vector(text string) []float32 {
	dim := e.dim
	if dim == 0 {
		dim = VectorDimension
	}
	v := make([]float32, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / math.Sqrt(norm))
		}
	}
	return v
}

func (e wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func chunk(text string, idx int) document.Document {
	return document.Document{
		PageContent: text,
		Metadata: map[string]any{
			document.MetaSource:     "documents/facts-01-01-2024-00-00-00.txt",
			document.MetaChunkIndex: idx,
		},
	}
}

var facts = []document.Document{
	chunk("The capital of France is Paris.", 0),
	chunk("Bananas are rich in potassium.", 1),
	chunk("The Pacific is the largest ocean on Earth.", 2),
}

// runIndexContract exercises the lifecycle every backend must honour.
func runIndexContract(t *testing.T, index VectorIndex) {
	t.Helper()
	ctx := context.Background()
	emb := wordEmbedder{}

	t.Run("retriever on fresh index is empty", func(t *testing.T) {
		_, err := index.Retriever(ctx, emb, 1)
		assert.ErrorIs(t, err, ErrIndexEmpty)
		assert.ErrorIs(t, err, ErrReadFailed)
	})

	t.Run("connect creates an empty index", func(t *testing.T) {
		require.NoError(t, index.Connect(ctx))
		state, err := index.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateEmpty, state)

		_, err = index.Retriever(ctx, emb, 1)
		assert.ErrorIs(t, err, ErrIndexEmpty)
	})

	t.Run("insert then retrieve nearest chunk", func(t *testing.T) {
		require.NoError(t, index.InsertEmbeddings(ctx, facts, emb))

		state, err := index.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatePopulated, state)

		r, err := index.Retriever(ctx, emb, 1)
		require.NoError(t, err)
		docs, err := r.Retrieve(ctx, "What is the capital of France?")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "The capital of France is Paris.", docs[0].PageContent)
		assert.Equal(t, facts[0].Source(), docs[0].Source())
		assert.Equal(t, 0, docs[0].Metadata[document.MetaChunkIndex])
	})

	t.Run("k bounds the result", func(t *testing.T) {
		r, err := index.Retriever(ctx, emb, 2)
		require.NoError(t, err)
		docs, err := r.Retrieve(ctx, "largest ocean")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "The Pacific is the largest ocean on Earth.", docs[0].PageContent)
	})

	t.Run("reconnect replaces the corpus", func(t *testing.T) {
		require.NoError(t, index.Connect(ctx))
		state, err := index.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateEmpty, state)

		require.NoError(t, index.InsertEmbeddings(ctx, []document.Document{chunk("Tokyo is in Japan.", 0)}, emb))
		r, err := index.Retriever(ctx, emb, 5)
		require.NoError(t, err)
		docs, err := r.Retrieve(ctx, "capital of France")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Tokyo is in Japan.", docs[0].PageContent)
	})

	t.Run("wrong dimension is a write failure", func(t *testing.T) {
		err := index.InsertEmbeddings(ctx, facts, wordEmbedder{dim: 8})
		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, index.Health(ctx))
	})
}
