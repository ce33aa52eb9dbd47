// Package document persists uploaded files and parses them into plain-text Documents.
package document

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mike-a-ellis/docubot/internal/logging"
)

// timestampLayout renders DD-MM-YYYY-HH-MM-SS.
const timestampLayout = "02-01-2006-15-04-05"

// SupportedExtensions lists the upload formats the ingestor can parse.
var SupportedExtensions = []string{"txt", "doc", "pdf", "csv"}

// Loader parses a saved file into Documents.
type Loader interface {
	Load(path string) ([]Document, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) ([]Document, error)

// Load calls f(path).
func (f LoaderFunc) Load(path string) ([]Document, error) { return f(path) }

// Ingestor saves uploads under the documents directory and dispatches them to the
// loader registered for their extension.
type Ingestor struct {
	dir     string
	loaders map[string]Loader
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngestor creates an ingestor rooted at dir with the four built-in loaders.
func NewIngestor(dir string, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		dir: dir,
		loaders: map[string]Loader{
			"txt": LoaderFunc(LoadText),
			"doc": LoaderFunc(LoadWord),
			"pdf": LoaderFunc(LoadPDF),
			"csv": LoaderFunc(LoadCSV),
		},
		logger: logging.Component(logger, "DocumentLoader"),
		now:    time.Now,
	}
}

// Dir returns the documents directory.
func (i *Ingestor) Dir() string { return i.dir }

// Save writes the upload to <dir>/<stem>-<DD-MM-YYYY-HH-MM-SS>.<ext> and returns the path.
// Two uploads of the same name within one second map to the same path; the later wins.
func (i *Ingestor) Save(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		i.logger.Error("Error while saving document", "error", err)
		return "", fmt.Errorf("%w: create documents dir: %v", ErrIOFailure, err)
	}

	stem, ext, ok := SplitName(filepath.Base(name))
	filename := stem + "-" + i.now().Format(timestampLayout)
	if ok {
		filename += "." + ext
	}
	path := filepath.Join(i.dir, filename)

	out, err := os.Create(path)
	if err != nil {
		i.logger.Error("Error while saving document", "path", path, "error", err)
		return "", fmt.Errorf("%w: create %s: %v", ErrIOFailure, path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		i.logger.Error("Error while saving document", "path", path, "error", err)
		return "", fmt.Errorf("%w: write %s: %v", ErrIOFailure, path, err)
	}
	if err := out.Close(); err != nil {
		i.logger.Error("Error while saving document", "path", path, "error", err)
		return "", fmt.Errorf("%w: close %s: %v", ErrIOFailure, path, err)
	}

	i.logger.Info("Document saved!", "path", path)
	return path, nil
}

// Load parses the file at path with the loader for its extension.
// Extensions outside SupportedExtensions return ErrUnsupportedFormat.
func (i *Ingestor) Load(path string) ([]Document, error) {
	_, ext, _ := SplitName(filepath.Base(path))
	loader, ok := i.loaders[ext]
	if !ok {
		i.logger.Info("Uploaded document type not supported!", "path", path, "ext", ext)
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	docs, err := loader.Load(path)
	if err != nil {
		i.logger.Error("Error while loading document", "path", path, "error", err)
		return nil, fmt.Errorf("%w: load %s: %v", ErrIOFailure, path, err)
	}

	i.logger.Info("Document loaded!", "path", path, "format", ext, "documents", len(docs))
	return docs, nil
}

// SplitName splits a file name into stem and extension on the last ".".
// ok is false when the name has no extension.
func SplitName(name string) (stem, ext string, ok bool) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}

// IsSupported reports whether name has one of the SupportedExtensions.
func IsSupported(name string) bool {
	_, ext, ok := SplitName(filepath.Base(name))
	if !ok {
		return false
	}
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
