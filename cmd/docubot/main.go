// Package main provides the docubot CLI: ingest documents, ask questions, chat in the
// terminal and watch a directory for new documents.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/docubot/internal/app"
	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docubot",
	Short: "Ask questions about a document",
	Long: `docubot indexes one document at a time (.txt, .doc, .pdf or .csv) and answers
questions about it with a local language model.

Environment variables:
  DOCUBOT_HOME        Base directory for model/, logs/ and documents/
  VECTOR_BACKEND      qdrant, sqlite or memory (default: qdrant)
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY      Vector index API key (optional)
  OPENAI_API_KEY      Key for the hosted embeddings API
  EMBEDDING_BASE_URL  OpenAI-compatible embeddings endpoint
  LLM_BASE_URL        OpenAI-compatible inference runtime
  GITHUB_TOKEN        GitHub token for ingest --github (optional)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $DOCUBOT_CONFIG)")
	rootCmd.AddCommand(ingestCmd, askCmd, chatCmd, watchCmd, statusCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, starts logging and wires the chatbot. quiet keeps log
// output off the terminal. The returned func releases everything.
func setup(ctx context.Context, name string, quiet bool) (*app.App, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logSetup := logging.Setup
	if quiet {
		logSetup = logging.SetupQuiet
	}
	logger, logFile, err := logSetup(cfg.LogDir(), name, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logFile.Close()
		return nil, nil, nil, err
	}

	return a, logger, func() {
		closeQuietly(logger, a)
		logFile.Close()
	}, nil
}

func closeQuietly(logger *slog.Logger, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("Error while closing", "error", err)
	}
}
