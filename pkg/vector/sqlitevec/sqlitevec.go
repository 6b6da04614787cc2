// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec. Node ids
// live in a mapping table because vec0 tables are keyed by integer rowid.
type Driver struct {
	db         *sql.DB
	dimensions int
	logger     *zap.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the embedding width. It must match the embedder.
	Dimensions uint
}

// NewDriver opens the database and creates the vector tables.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Keeps ":memory:" databases alive and serializes vec0 writes.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS node_vectors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL UNIQUE,
			text_hash TEXT NOT NULL DEFAULT ''
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS node_embeddings USING vec0(embedding float[%d])`, c.Dimensions),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating vector tables: %w", err)
		}
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{db: db, dimensions: int(c.Dimensions), logger: logger}, nil
}

// encode converts a float32 slice to the little-endian BLOB sqlite-vec reads.
func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Add upserts documents. vec0 has no UPDATE, so a changed embedding is
// deleted and re-inserted under the node's existing rowid.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if len(doc.Embedding) != d.dimensions {
			return fmt.Errorf("%w: node %s has %d dimensions, want %d", vector.ErrDimensions, doc.ID, len(doc.Embedding), d.dimensions)
		}

		var rowID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO node_vectors(node_id, text_hash) VALUES (?, ?)
			ON CONFLICT(node_id) DO UPDATE SET text_hash = excluded.text_hash
			RETURNING id
		`, doc.ID, doc.Hash).Scan(&rowID)
		if err != nil {
			return fmt.Errorf("upserting node %s: %w", doc.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM node_embeddings WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("clearing embedding for node %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, encode(doc.Embedding),
		); err != nil {
			return fmt.Errorf("inserting embedding for node %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("indexed nodes in sqlite-vec", zap.Int("count", len(docs)))
	return nil
}

// Query runs a KNN match and converts distances to similarity scores.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT v.node_id, v.text_hash, knn.distance
		FROM (
			SELECT rowid, distance FROM node_embeddings
			WHERE embedding MATCH ? AND k = ?
		) knn
		INNER JOIN node_vectors v ON v.id = knn.rowid
		ORDER BY knn.distance, v.node_id
	`, encode(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			r        vector.QueryResult
			distance float64
		)
		if err := rows.Scan(&r.ID, &r.Hash, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		// lower distance = higher similarity
		r.Score = float32(1.0 / (1.0 + distance))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

// Get retrieves documents and their embeddings in one join.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in, args := inClause(ids)
	rows, err := d.db.QueryContext(ctx, `
		SELECT v.node_id, v.text_hash, e.embedding
		FROM node_vectors v
		LEFT JOIN node_embeddings e ON e.rowid = v.id
		WHERE v.node_id IN (`+in+`)
		ORDER BY v.node_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []vector.Document
	for rows.Next() {
		var (
			doc  vector.Document
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Hash, &blob); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if len(blob) > 0 {
			if doc.Embedding, err = decode(blob); err != nil {
				return nil, fmt.Errorf("decoding embedding for node %s: %w", doc.ID, err)
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes documents and their embeddings.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	in, args := inClause(ids)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM node_embeddings WHERE rowid IN (SELECT id FROM node_vectors WHERE node_id IN (`+in+`))`, args...,
	); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM node_vectors WHERE node_id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
