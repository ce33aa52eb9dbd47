// Package server exposes the chatbot over HTTP: the /predict API, a health check and
// an interactive upload-and-ask page.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mike-a-ellis/docubot/internal/docubot"
	"github.com/mike-a-ellis/docubot/internal/indexer"
	"github.com/mike-a-ellis/docubot/internal/logging"
)

// AllowedOrigins may call the API from a browser.
var AllowedOrigins = []string{
	"http://localhost",
	"http://localhost:8080",
	"http://localhost:3000",
}

// maxUploadBytes caps a multipart upload held in memory; larger parts spill to disk.
const maxUploadBytes = 32 << 20

// Chatbot is the service behind every route.
type Chatbot interface {
	Predict(ctx context.Context, query string, upload *docubot.Upload) docubot.Response
	Ingest(ctx context.Context, name string, r io.Reader) (*indexer.IngestResult, error)
	Ask(ctx context.Context, query string) (string, error)
	Status(ctx context.Context) (docubot.IndexStatus, error)
}

// Options adds optional routes.
type Options struct {
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// New returns the routed handler with CORS and request logging applied.
func New(bot Chatbot, logger *slog.Logger, opts *Options) http.Handler {
	logger = logging.Component(logger, "API")

	mux := http.NewServeMux()
	mux.Handle("POST /predict", NewPredictHandler(bot, logger))
	mux.Handle("GET /health", NewHealthHandler(bot))

	ui := newUI(bot, logger)
	mux.HandleFunc("GET /{$}", ui.page)
	mux.HandleFunc("POST /ui", ui.submit)

	if opts != nil && opts.MCP != nil {
		mux.Handle("/mcp", opts.MCP)
	}

	return withLogging(logger, withCORS(AllowedOrigins, mux))
}

// withCORS answers preflight requests and tags responses for allowed origins.
// Credentials, every method and every header are allowed.
func withCORS(origins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
