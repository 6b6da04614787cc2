// Package sqldriver implements storage.Driver over any database/sql backend
// that ent's SQL dialect builder supports. The sqlite, postgres and libsql
// packages open their connection and hand it to New.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

const (
	checkpointsTable = "memstate_checkpoints"
	logTable         = "memstate_log"
)

// Driver implements storage.Driver over an ent SQL driver.
type Driver struct {
	drv     *entsql.Driver
	dialect string
}

// New wraps db for the given ent dialect and creates the schema if missing.
func New(ctx context.Context, dialectName string, db *sql.DB) (*Driver, error) {
	d := &Driver{
		drv:     entsql.OpenDB(dialectName, db),
		dialect: dialectName,
	}

	if err := d.migrate(ctx); err != nil {
		d.drv.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return d, nil
}

func (d *Driver) migrate(ctx context.Context) error {
	position := "log_pos INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.dialect == dialect.Postgres {
		position = "log_pos BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + checkpointsTable + ` (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			state TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + logTable + ` (
			` + position + `,
			seq BIGINT NOT NULL,
			batch BIGINT NOT NULL,
			applied_at BIGINT NOT NULL,
			op TEXT NOT NULL,
			path TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, stmt := range stmts {
		if err := d.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.dialect)
}

// SaveCheckpoint inserts a checkpoint row holding st as JSON.
func (d *Driver) SaveCheckpoint(ctx context.Context, st *state.State, label string) (storage.Checkpoint, error) {
	cp := storage.NewCheckpoint(label)

	data, err := json.Marshal(st.Snapshot())
	if err != nil {
		return storage.Checkpoint{}, fmt.Errorf("encoding checkpoint: %w", err)
	}

	query, args := d.builder().
		Insert(checkpointsTable).
		Columns("id", "label", "created_at", "state").
		Values(cp.ID, cp.Label, cp.CreatedAt.UnixNano(), string(data)).
		Query()

	if err := d.drv.Exec(ctx, query, args, nil); err != nil {
		return storage.Checkpoint{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return cp, nil
}

// LoadCheckpoint selects a checkpoint row by id.
func (d *Driver) LoadCheckpoint(ctx context.Context, id string) (*storage.Snapshot, error) {
	b := d.builder()
	query, args := b.Select("id", "label", "created_at", "state").
		From(b.Table(checkpointsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	var rows entsql.Rows
	if err := d.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		return nil, storage.NotFoundError{ID: id}
	}

	var (
		cp      storage.Checkpoint
		created int64
		data    string
	)
	if err := rows.Scan(&cp.ID, &cp.Label, &created, &data); err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	cp.CreatedAt = fromNanos(created)

	st := state.New()
	if err := json.Unmarshal([]byte(data), st); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", id, err)
	}

	return &storage.Snapshot{Checkpoint: cp, State: st}, nil
}

// ListCheckpoints returns checkpoint headers, oldest first.
func (d *Driver) ListCheckpoints(ctx context.Context) ([]storage.Checkpoint, error) {
	b := d.builder()
	query, args := b.Select("id", "label", "created_at").
		From(b.Table(checkpointsTable)).
		OrderBy("created_at", "id").
		Query()

	var rows entsql.Rows
	if err := d.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	out := []storage.Checkpoint{}
	for rows.Next() {
		var (
			cp      storage.Checkpoint
			created int64
		)
		if err := rows.Scan(&cp.ID, &cp.Label, &created); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cp.CreatedAt = fromNanos(created)
		out = append(out, cp)
	}
	return out, rows.Err()
}

// AppendToLog inserts entries in one transaction.
func (d *Driver) AppendToLog(ctx context.Context, entries []state.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	insert := d.builder().
		Insert(logTable).
		Columns("seq", "batch", "applied_at", "op", "path", "value", "reason")
	for _, e := range entries {
		insert.Values(e.Seq, e.Batch, toNanos(e.At), string(e.Op), e.Path, string(e.Value), e.Reason)
	}
	query, args := insert.Query()

	tx, err := d.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to append to log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log append: %w", err)
	}
	return nil
}

// ReadLog returns the log in insertion order.
func (d *Driver) ReadLog(ctx context.Context) ([]state.Entry, error) {
	b := d.builder()
	query, args := b.Select("seq", "batch", "applied_at", "op", "path", "value", "reason").
		From(b.Table(logTable)).
		OrderBy("log_pos").
		Query()

	var rows entsql.Rows
	if err := d.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer rows.Close()

	out := []state.Entry{}
	for rows.Next() {
		var (
			e     state.Entry
			at    int64
			op    string
			value string
		)
		if err := rows.Scan(&e.Seq, &e.Batch, &at, &op, &e.Path, &value, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Op = state.Op(op)
		e.At = fromNanos(at)
		if value != "" {
			e.Value = json.RawMessage(value)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.drv.Close()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
