// Package main provides the docubot server: the /predict API, the upload page and
// the MCP tools over HTTP, or the MCP tools over stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mike-a-ellis/docubot/internal/app"
	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/logging"
	mcpserver "github.com/mike-a-ellis/docubot/internal/mcp"
	"github.com/mike-a-ellis/docubot/internal/server"
)

var version = "dev"

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := logging.Setup(cfg.LogDir(), "api", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tools := mcpserver.NewServer(a.Service, version)
	handler := server.New(a.Service, logger, &server.Options{
		MCP: mcpserver.NewHTTPHandler(tools, true),
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.ServerMode {
		// HTTP mode: API, upload page and MCP for remote clients
		logger.Info("Starting HTTP server", "addr", srv.Addr, "predict", "/predict", "mcp", "/mcp", "health", "/health")
		return serve(ctx, srv, logger)
	}

	// Stdio mode: MCP over stdin/stdout for local clients, with the HTTP
	// endpoints in the background for local testing
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr)
		if err := serve(ctx, srv, logger); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("Starting docubot MCP server (stdio mode)")
	return tools.Run(ctx)
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
