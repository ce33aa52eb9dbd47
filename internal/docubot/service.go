// Package docubot answers questions about the most recently uploaded document.
package docubot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mike-a-ellis/docubot/internal/indexer"
	"github.com/mike-a-ellis/docubot/internal/llm"
	"github.com/mike-a-ellis/docubot/internal/logging"
	"github.com/mike-a-ellis/docubot/internal/rag"
	"github.com/mike-a-ellis/docubot/internal/storage"
)

// Ingester runs the write path for one upload.
type Ingester interface {
	Ingest(ctx context.Context, name string, r io.Reader) (*indexer.IngestResult, error)
}

// ModelProvider hands out the loaded language model.
type ModelProvider interface {
	Load(ctx context.Context) (*llm.Model, error)
}

// Upload is a file sent along with a query.
type Upload struct {
	Name string
	Body io.Reader
}

// Service wires the ingestion pipeline, the index and the model into the
// question-answering flow.
type Service struct {
	ingester Ingester
	index    storage.VectorIndex
	embedder storage.Embedder
	models   ModelProvider
	prompt   rag.PromptTemplate
	logger   *slog.Logger
}

// NewService creates the chatbot service.
func NewService(ingester Ingester, index storage.VectorIndex, embedder storage.Embedder, models ModelProvider, logger *slog.Logger) *Service {
	return &Service{
		ingester: ingester,
		index:    index,
		embedder: embedder,
		models:   models,
		prompt:   rag.PreparePrompt(),
		logger:   logging.Component(logger, "API"),
	}
}

// Predict answers query, first replacing the indexed document when upload is non-nil.
// Failures come back as a Response, never as a panic or error.
func (s *Service) Predict(ctx context.Context, query string, upload *Upload) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Error occurred", "panic", r)
			resp = Response{Status: http.StatusInternalServerError, Error: fmt.Sprint(r)}
		}
	}()

	s.logger.Info("Query received!")

	if upload != nil {
		if _, err := s.Ingest(ctx, upload.Name, upload.Body); err != nil {
			return s.fail(err)
		}
	}

	answer, err := s.Ask(ctx, query)
	if err != nil {
		return s.fail(err)
	}
	return Response{Status: http.StatusOK, Result: &answer}
}

func (s *Service) fail(err error) Response {
	resp := ErrorResponse(err)
	s.logger.Error("Error occurred", "status", resp.Status, "message", resp.Message(), "error", err)
	return resp
}

// Ingest makes the upload the only indexed document.
func (s *Service) Ingest(ctx context.Context, name string, r io.Reader) (*indexer.IngestResult, error) {
	return s.ingester.Ingest(ctx, name, r)
}

// Ask answers query from the currently indexed document.
func (s *Service) Ask(ctx context.Context, query string) (string, error) {
	model, err := s.models.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load model: %w", err)
	}

	retriever, err := s.index.Retriever(ctx, s.embedder, rag.DefaultK)
	if err != nil {
		return "", fmt.Errorf("attach retriever: %w", err)
	}

	chain, err := rag.NewQAChain(s.prompt, model, retriever, s.logger)
	if err != nil {
		return "", err
	}

	result, err := chain.SearchResult(ctx, query)
	if err != nil {
		return "", err
	}
	return result.Result, nil
}

// IndexStatus describes the index for health and status reporting.
type IndexStatus struct {
	Name  string
	State storage.IndexState
}

// Status reports the index state. It fails when the index backend is unhealthy.
func (s *Service) Status(ctx context.Context) (IndexStatus, error) {
	st := IndexStatus{Name: s.index.Name()}
	if err := s.index.Health(ctx); err != nil {
		return st, err
	}
	state, err := s.index.State(ctx)
	if err != nil {
		return st, err
	}
	st.State = state
	return st, nil
}
