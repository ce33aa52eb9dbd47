package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mike-a-ellis/docubot/internal/config"
	"github.com/mike-a-ellis/docubot/internal/document"
)

func init() {
	sqlite_vec.Auto()
}

const sqliteMetaDDL = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// The chunk tables only exist once Connect has created the index.
const sqliteIndexDDL = `
CREATE TABLE IF NOT EXISTS chunks (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    point_id TEXT NOT NULL UNIQUE,
    content  TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[384] distance_metric=cosine
);
`

// SQLiteIndex is a VectorIndex stored in a local SQLite file through sqlite-vec.
type SQLiteIndex struct {
	db     *sql.DB
	path   string
	name   string
	logger *slog.Logger
}

// NewSQLiteIndex opens or creates the database at path. The index itself is created
// by Connect.
func NewSQLiteIndex(path string, cfg config.IndexConfig, logger *slog.Logger) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", ErrConnectFailed, err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", ErrConnectFailed, err)
	}
	if _, err := db.Exec(sqliteMetaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrConnectFailed, err)
	}
	return &SQLiteIndex{
		db:     db,
		path:   path,
		name:   cfg.Name,
		logger: componentLogger(logger).With("index", cfg.Name, "backend", config.BackendSQLite),
	}, nil
}

func (s *SQLiteIndex) Name() string { return s.name }

func (s *SQLiteIndex) Health(ctx context.Context) error {
	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) State(ctx context.Context) (IndexState, error) {
	var tables int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE name IN ('chunks', 'vec_chunks')").Scan(&tables)
	if err != nil {
		return StateAbsent, fmt.Errorf("inspect schema: %w", err)
	}
	if tables < 2 {
		return StateAbsent, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM chunks").Scan(&count); err != nil {
		return StateAbsent, fmt.Errorf("count chunks: %w", err)
	}
	if count == 0 {
		return StateEmpty, nil
	}
	return StatePopulated, nil
}

// Connect creates the chunk tables or empties them. SQLite is ready as soon as the
// statements commit, so there is nothing to poll.
func (s *SQLiteIndex) Connect(ctx context.Context) error {
	state, err := s.State(ctx)
	if err != nil {
		s.logger.Error("Error while connecting to vector index", "error", err)
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	switch state {
	case StateAbsent:
		if _, err := s.db.ExecContext(ctx, sqliteIndexDDL); err != nil {
			s.logger.Error("Error while creating index", "error", err)
			return fmt.Errorf("%w: create index: %v", ErrConnectFailed, err)
		}
		if err := s.setMeta(ctx, "index_name", s.name); err != nil {
			return fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
		s.logger.Info("Index created", "path", s.path, "dimension", VectorDimension)
	case StatePopulated:
		if err := s.clear(ctx); err != nil {
			s.logger.Error("Error while clearing index", "error", err)
			return fmt.Errorf("%w: clear index: %v", ErrConnectFailed, err)
		}
		s.logger.Info("Existing index cleared")
	}
	return nil
}

func (s *SQLiteIndex) clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// InsertEmbeddings writes chunk rows and their vectors in one transaction.
func (s *SQLiteIndex) InsertEmbeddings(ctx context.Context, chunks []document.Document, embedder Embedder) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := embedChunks(ctx, chunks, embedder)
	if err != nil {
		s.logger.Error("Error while inserting embeddings", "error", err)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	if err := s.insert(ctx, chunks, vectors); err != nil {
		s.logger.Error("Error while inserting embeddings", "error", err)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	s.logger.Info("Embeddings inserted", "chunks", len(chunks))
	return nil
}

func (s *SQLiteIndex) insert(ctx context.Context, chunks []document.Document, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	chunkStmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (point_id, content, metadata) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	vecStmt, err := tx.PrepareContext(ctx, "INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer vecStmt.Close()

	for i, c := range chunks {
		meta := payloadMetadata(c)
		delete(meta, PayloadText)
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode metadata for chunk %d: %w", i, err)
		}

		res, err := chunkStmt.ExecContext(ctx, uuid.NewString(), c.PageContent, string(metaJSON))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %d: %w", i, err)
		}
		if _, err := vecStmt.ExecContext(ctx, id, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Retriever(ctx context.Context, embedder Embedder, k int) (*Retriever, error) {
	state, err := s.State(ctx)
	if err != nil {
		s.logger.Error("Error while attaching retriever", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if state != StatePopulated {
		s.logger.Warn("No document has been indexed yet", "state", state.String())
		return nil, ErrIndexEmpty
	}
	return newRetriever(s, embedder, k, s.logger), nil
}

func (s *SQLiteIndex) search(ctx context.Context, vector []float32, k int) ([]document.Document, error) {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content, c.metadata
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ?
		ORDER BY v.distance
		LIMIT ?
	`, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var content, metaJSON string
		if err := rows.Scan(&content, &metaJSON); err != nil {
			return nil, err
		}
		payload, err := decodeMetadata(metaJSON)
		if err != nil {
			return nil, err
		}
		payload[PayloadText] = content
		docs = append(docs, documentFromPayload(payload))
	}
	return docs, rows.Err()
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// decodeMetadata parses stored metadata, keeping integral numbers as int64.
func decodeMetadata(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	for k, v := range meta {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			meta[k] = i
		} else if f, err := n.Float64(); err == nil {
			meta[k] = f
		}
	}
	return meta, nil
}
