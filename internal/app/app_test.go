package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/storage"
)

func TestNew_MemoryBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Home = t.TempDir()
	cfg.Index.Backend = config.BackendMemory
	cfg.Embedding.BaseURL = "http://127.0.0.1:1/v1"

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	st, err := a.Service.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.StateAbsent, st.State)
	assert.Equal(t, cfg.Index.Name, st.Name)
}

func TestNew_HostedEmbeddingsNeedKey(t *testing.T) {
	cfg := config.Default()
	cfg.Home = t.TempDir()
	cfg.Index.Backend = config.BackendMemory
	cfg.Embedding.BaseURL = ""
	cfg.Embedding.APIKey = ""

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestCheckWatchDir(t *testing.T) {
	home := t.TempDir()
	docs := filepath.Join(home, "documents")

	assert.ErrorIs(t, checkWatchDir(docs, docs), ErrNoDocumentsDir)
	assert.ErrorIs(t, checkWatchDir(docs, docs+"/"), ErrNoDocumentsDir)
	assert.NoError(t, checkWatchDir(docs, filepath.Join(home, "inbox")))
}
