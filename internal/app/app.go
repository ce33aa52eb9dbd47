// Package app builds the chatbot from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/docubot"
	"github.com/mike-a-ellis/docubot/internal/document"
	"github.com/mike-a-ellis/docubot/internal/embedding"
	"github.com/mike-a-ellis/docubot/internal/indexer"
	"github.com/mike-a-ellis/docubot/internal/llm"
	"github.com/mike-a-ellis/docubot/internal/storage"
	"github.com/mike-a-ellis/docubot/internal/textsplit"
)

// App holds the wired components. Close releases the vector index.
type App struct {
	Config   *config.Config
	Index    storage.VectorIndex
	Embedder *embedding.Embedder
	Pipeline *indexer.Pipeline
	Models   *llm.Provider
	Service  *docubot.Service
}

// New connects to the configured backends and wires the service. The language
// model is loaded lazily on the first question.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embeddingClient, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.Embedding.BatchSize, logger)

	index, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	pipeline := indexer.NewPipeline(
		document.NewIngestor(cfg.DocumentsDir(), logger),
		textsplit.NewDefault(),
		index,
		embedder,
		logger,
	)
	models := llm.NewProvider(cfg.LLM, cfg.ModelDir(), logger)

	return &App{
		Config:   cfg,
		Index:    index,
		Embedder: embedder,
		Pipeline: pipeline,
		Models:   models,
		Service:  docubot.NewService(pipeline, index, embedder, models, logger),
	}, nil
}

// Close releases the vector index connection.
func (a *App) Close() error {
	if a == nil || a.Index == nil {
		return nil
	}
	return a.Index.Close()
}

// ErrNoDocumentsDir is returned by CheckWatchDir.
var ErrNoDocumentsDir = errors.New("cannot watch the documents directory")

// CheckWatchDir rejects watching the directory uploads are saved to, which would
// ingest every saved copy again.
func (a *App) CheckWatchDir(dir string) error {
	return checkWatchDir(a.Config.DocumentsDir(), dir)
}
