//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docubot/internal/config"
)

// setupTestIndex points at a fresh collection on a local Qdrant.
// Skips test if Qdrant is not running.
func setupTestIndex(t *testing.T) *QdrantIndex {
	t.Helper()
	cfg := config.Default().Index
	cfg.Name = "docubot-test-" + uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	idx, err := NewQdrantIndex(ctx, cfg, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() {
		_ = idx.client.DeleteCollection(context.Background(), cfg.Name)
		idx.Close()
	})
	return idx
}

func TestQdrantIndex_Contract(t *testing.T) {
	runIndexContract(t, setupTestIndex(t))
}

func TestQdrantIndex_ServerlessCreatesOnDisk(t *testing.T) {
	idx := setupTestIndex(t)
	idx.cfg.Environment = config.DeploymentServerless
	ctx := context.Background()

	require.NoError(t, idx.Connect(ctx))

	info, err := idx.client.GetCollectionInfo(ctx, idx.cfg.Name)
	require.NoError(t, err)
	assert.True(t, info.GetConfig().GetParams().GetOnDiskPayload())
}

func TestQdrantIndex_ReadinessIsBounded(t *testing.T) {
	idx := setupTestIndex(t)
	idx.cfg.ReadyAttempts = 2
	idx.pollInterval = 10 * time.Millisecond

	// The collection never exists, so every readiness probe fails.
	err := waitReady(context.Background(), idx.cfg.ReadyAttempts, idx.pollInterval, idx.ready)
	assert.ErrorIs(t, err, ErrIndexNotReady)
}
