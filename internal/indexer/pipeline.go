// Package indexer runs the write path: save an upload, parse it, replace the index
// contents with its chunks.
package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mike-a-ellis/docubot/internal/document"
	"github.com/mike-a-ellis/docubot/internal/logging"
	"github.com/mike-a-ellis/docubot/internal/storage"
	"github.com/mike-a-ellis/docubot/internal/textsplit"
)

// IngestResult contains statistics about one ingestion.
type IngestResult struct {
	Path      string
	Documents int
	Chunks    int
	Duration  time.Duration
}

// indexLocks serializes Save..InsertEmbeddings per index name across every
// pipeline in the process.
var indexLocks sync.Map

func lockIndex(name string) func() {
	v, _ := indexLocks.LoadOrStore(name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Pipeline orchestrates save, load, connect, split and insert.
type Pipeline struct {
	ingestor *document.Ingestor
	splitter *textsplit.RecursiveSplitter
	index    storage.VectorIndex
	embedder storage.Embedder
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline with the given components.
func NewPipeline(
	ingestor *document.Ingestor,
	splitter *textsplit.RecursiveSplitter,
	index storage.VectorIndex,
	embedder storage.Embedder,
	logger *slog.Logger,
) *Pipeline {
	if splitter == nil {
		splitter = textsplit.NewDefault()
	}
	return &Pipeline{
		ingestor: ingestor,
		splitter: splitter,
		index:    index,
		embedder: embedder,
		logger:   logging.Component(logger, "Indexer"),
	}
}

// Ingest stores the upload and makes it the only document in the index.
// Names without a supported extension are rejected before anything is written.
func (p *Pipeline) Ingest(ctx context.Context, name string, r io.Reader) (*IngestResult, error) {
	start := time.Now()

	if !document.IsSupported(name) {
		p.logger.Error("Uploded document type not supported!", "name", name)
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, filepath.Base(name))
	}
	p.logger.Info("File received!", "name", name)

	// Uploads of one name within the same second share a path, so saving and
	// loading happen under the index lock too.
	unlock := lockIndex(p.index.Name())
	defer unlock()

	path, err := p.ingestor.Save(name, r)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	docs, err := p.ingestor.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	if err := p.index.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	p.logger.Info("Tokenization in progress...")
	chunks := p.splitter.SplitDocuments(docs)
	p.logger.Info("Tokenization completed!", "chunks", len(chunks))
	if len(chunks) == 0 {
		p.logger.Warn("Document produced no text to index", "path", path)
	}

	if err := p.index.InsertEmbeddings(ctx, chunks, p.embedder); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	result := &IngestResult{
		Path:      path,
		Documents: len(docs),
		Chunks:    len(chunks),
		Duration:  time.Since(start),
	}
	p.logger.Info("Document indexed",
		"path", result.Path,
		"documents", result.Documents,
		"chunks", result.Chunks,
		"duration", result.Duration,
	)
	return result, nil
}

// IngestFile ingests a file that already exists on disk. A copy is saved under the
// documents directory like any other upload.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	if !document.IsSupported(path) {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", document.ErrIOFailure, path, err)
	}
	defer f.Close()

	return p.Ingest(ctx, filepath.Base(path), f)
}
