package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/document"
)

// upsertBatchSize bounds the points sent in one Upsert call.
const upsertBatchSize = 100

// QdrantIndex is a VectorIndex backed by one Qdrant collection over gRPC.
type QdrantIndex struct {
	client       *qdrant.Client
	cfg          config.IndexConfig
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewQdrantIndex creates the Qdrant client and validates the server is reachable,
// retrying with exponential backoff. An authorization failure is logged and the
// index is still returned.
func NewQdrantIndex(ctx context.Context, cfg config.IndexConfig, logger *slog.Logger) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %v", ErrConnectFailed, err)
	}

	q := &QdrantIndex{
		client:       client,
		cfg:          cfg,
		pollInterval: time.Second,
		logger:       componentLogger(logger).With("index", cfg.Name, "backend", config.BackendQdrant),
	}

	if err := q.healthCheckWithRetry(ctx); err != nil {
		if isUnauthorized(err) {
			q.logger.Error("Vector index rejected the API key", "error", err)
			return q, nil
		}
		client.Close()
		return nil, fmt.Errorf("%w: %s:%d unreachable: %v", ErrConnectFailed, cfg.Host, cfg.Port, err)
	}
	return q, nil
}

func (q *QdrantIndex) Name() string { return q.cfg.Name }

// healthCheckWithRetry: initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		err := q.Health(ctx)
		if err != nil && isUnauthorized(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (q *QdrantIndex) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.GetTitle() == "" {
		return errors.New("health check returned invalid response")
	}
	return nil
}

func (q *QdrantIndex) State(ctx context.Context) (IndexState, error) {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Name)
	if err != nil {
		return StateAbsent, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		return StateAbsent, nil
	}

	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return StateAbsent, fmt.Errorf("count points: %w", err)
	}
	if count == 0 {
		return StateEmpty, nil
	}
	return StatePopulated, nil
}

// Connect moves the collection to the empty state and waits until Qdrant reports it green.
func (q *QdrantIndex) Connect(ctx context.Context) error {
	state, err := q.State(ctx)
	if err != nil {
		q.logger.Error("Error while connecting to vector index", "error", err)
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	switch state {
	case StateAbsent:
		if err := q.createCollection(ctx); err != nil {
			q.logger.Error("Error while creating index", "error", err)
			return fmt.Errorf("%w: create collection: %v", ErrConnectFailed, err)
		}
		q.logger.Info("Index created", "environment", q.cfg.Environment, "dimension", VectorDimension)
	case StatePopulated:
		if err := q.clear(ctx); err != nil {
			q.logger.Error("Error while clearing index", "error", err)
			return fmt.Errorf("%w: clear collection: %v", ErrConnectFailed, err)
		}
		q.logger.Info("Existing index cleared")
	}

	if err := waitReady(ctx, q.cfg.ReadyAttempts, q.pollInterval, q.ready); err != nil {
		q.logger.Error("Index did not become ready", "attempts", q.cfg.ReadyAttempts, "error", err)
		return err
	}

	if err := q.Health(ctx); err != nil {
		if isUnauthorized(err) {
			q.logger.Error("Vector index rejected the API key", "error", err)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	q.logger.Info("Connected to vector index")
	return nil
}

// createCollection creates a cosine collection sized for VectorDimension. Pod
// deployments get explicit sharding; serverless ones keep vectors and payload on disk.
func (q *QdrantIndex) createCollection(ctx context.Context) error {
	params := &qdrant.VectorParams{
		Size:     VectorDimension,
		Distance: qdrant.Distance_Cosine,
	}
	req := &qdrant.CreateCollection{CollectionName: q.cfg.Name}

	switch q.cfg.Environment {
	case config.DeploymentServerless:
		params.OnDisk = qdrant.PtrOf(true)
		req.OnDiskPayload = qdrant.PtrOf(true)
	default:
		if q.cfg.Shards > 0 {
			req.ShardNumber = qdrant.PtrOf(uint32(q.cfg.Shards))
		}
		if q.cfg.Replicas > 0 {
			req.ReplicationFactor = qdrant.PtrOf(uint32(q.cfg.Replicas))
		}
	}
	req.VectorsConfig = qdrant.NewVectorsConfig(params)

	return q.client.CreateCollection(ctx, req)
}

// clear deletes every point while keeping the collection and its configuration.
func (q *QdrantIndex) clear(ctx context.Context) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{}),
	})
	return err
}

func (q *QdrantIndex) ready(ctx context.Context) (bool, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.cfg.Name)
	if err != nil {
		return false, err
	}
	return collectionReady(info.GetStatus()), nil
}

// collectionReady treats Yellow (optimizing) and Grey (optimizations pending) as
// ready: both accept reads and writes. Red and unknown keep the poll going.
func collectionReady(status qdrant.CollectionStatus) bool {
	switch status {
	case qdrant.CollectionStatus_Green, qdrant.CollectionStatus_Yellow, qdrant.CollectionStatus_Grey:
		return true
	default:
		return false
	}
}

// InsertEmbeddings embeds chunks and upserts them in batches of upsertBatchSize.
func (q *QdrantIndex) InsertEmbeddings(ctx context.Context, chunks []document.Document, embedder Embedder) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := embedChunks(ctx, chunks, embedder)
	if err != nil {
		q.logger.Error("Error while inserting embeddings", "error", err)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	for i := 0; i < len(chunks); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(uuid.NewString()),
				Vectors: qdrant.NewVectors(vectors[j]...),
				Payload: qdrant.NewValueMap(payloadMetadata(chunks[j])),
			})
		}

		if err := q.upsertWithRetry(ctx, points); err != nil {
			q.logger.Error("Error while inserting embeddings", "from", i, "to", end, "error", err)
			return fmt.Errorf("%w: upsert batch %d-%d: %v", ErrWriteFailed, i, end, err)
		}
	}

	q.logger.Info("Embeddings inserted", "chunks", len(chunks))
	return nil
}

func (q *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.cfg.Name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil && isUnauthorized(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (q *QdrantIndex) Retriever(ctx context.Context, embedder Embedder, k int) (*Retriever, error) {
	state, err := q.State(ctx)
	if err != nil {
		q.logger.Error("Error while attaching retriever", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if state != StatePopulated {
		q.logger.Warn("No document has been indexed yet", "state", state.String())
		return nil, ErrIndexEmpty
	}
	return newRetriever(q, embedder, k, q.logger), nil
}

func (q *QdrantIndex) search(ctx context.Context, vector []float32, k int) ([]document.Document, error) {
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	docs := make([]document.Document, 0, len(results))
	for _, r := range results {
		payload := make(map[string]any, len(r.GetPayload()))
		for key, v := range r.GetPayload() {
			payload[key] = fromValue(v)
		}
		docs = append(docs, documentFromPayload(payload))
	}
	return docs, nil
}

// Close closes the Qdrant client connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

func isUnauthorized(err error) bool {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}
