// Package watcher ingests documents as they appear in a directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mike-a-ellis/docubot/internal/document"
	"github.com/mike-a-ellis/docubot/internal/indexer"
	"github.com/mike-a-ellis/docubot/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// FileIngester indexes a file already on disk.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (*indexer.IngestResult, error)
}

// Event is the outcome of ingesting one file.
type Event struct {
	Path   string
	Result *indexer.IngestResult
	Err    error
}

// Watcher ingests supported files created or written in a directory. Bursts of
// writes to one file collapse into a single ingestion once the file is quiet.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ingester FileIngester
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(ingester FileIngester, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  w,
		ingester: ingester,
		debounce: debounce,
		logger:   logging.Component(logger, "Watcher"),
	}, nil
}

// Watch starts monitoring dir. Events are delivered in ingestion order; the
// channel closes when ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("Watching directory", "dir", dir, "debounce", w.debounce)

	ready := make(chan string, 16)
	events := make(chan Event, 16)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	// stopped closes when the fsnotify loop exits, which also happens on Close.
	stopped := make(chan struct{})
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[path] = time.AfterFunc(w.debounce, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			case <-stopped:
			}
		})
	}

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopped:
				return
			case path := <-ready:
				res, err := w.ingester.IngestFile(ctx, path)
				if err != nil {
					w.logger.Error("Error while ingesting file", "path", path, "error", err)
				} else {
					w.logger.Info("File ingested", "path", path, "chunks", res.Chunks)
				}
				select {
				case events <- Event{Path: path, Result: res, Err: err}:
				case <-ctx.Done():
					return
				case <-stopped:
					return
				}
			}
		}
	}()

	go func() {
		defer func() {
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
			close(stopped)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				if !document.IsSupported(filepath.Base(event.Name)) {
					continue
				}
				schedule(event.Name)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("Watcher error", "error", err)
			}
		}
	}()

	return events, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
