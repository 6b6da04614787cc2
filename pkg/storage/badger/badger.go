// Package badger provides a storage driver on an embedded BadgerDB. Log
// entries are keyed by a zero-padded position so prefix iteration returns
// them in append order.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

const (
	checkpointPrefix = "cp/"
	logPrefix        = "log/"
)

// Config configures the BadgerDB driver.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory, for tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *zap.Logger
}

// Driver implements storage.Driver over BadgerDB.
type Driver struct {
	db *badger.DB

	// mu guards next, the position the next log entry is written at
	mu   sync.Mutex
	next uint64
}

// NewDriver opens the database described by cfg.
func NewDriver(cfg Config) (*Driver, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	d := &Driver{db: db}
	if err := d.loadPosition(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// loadPosition resumes log positions after the last stored entry.
func (d *Driver) loadPosition() error {
	return d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key in the log prefix.
		it.Seek([]byte(logPrefix + "\xff"))
		if it.ValidForPrefix([]byte(logPrefix)) {
			var pos uint64
			if _, err := fmt.Sscanf(string(it.Item().Key()), logPrefix+"%020d", &pos); err != nil {
				return fmt.Errorf("parsing log key %q: %w", it.Item().Key(), err)
			}
			d.next = pos + 1
		}
		return nil
	})
}

func logKey(pos uint64) []byte {
	return fmt.Appendf(nil, "%s%020d", logPrefix, pos)
}

// SaveCheckpoint stores st under a new checkpoint key.
func (d *Driver) SaveCheckpoint(_ context.Context, st *state.State, label string) (storage.Checkpoint, error) {
	cp := storage.NewCheckpoint(label)

	data, err := json.Marshal(storage.Snapshot{Checkpoint: cp, State: st.Snapshot()})
	if err != nil {
		return storage.Checkpoint{}, fmt.Errorf("encoding checkpoint: %w", err)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(checkpointPrefix+cp.ID), data)
	})
	if err != nil {
		return storage.Checkpoint{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return cp, nil
}

// LoadCheckpoint reads a checkpoint by id.
func (d *Driver) LoadCheckpoint(_ context.Context, id string) (*storage.Snapshot, error) {
	var snap storage.Snapshot

	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(checkpointPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}

	if snap.State == nil {
		snap.State = state.New()
	}
	return &snap, nil
}

// ListCheckpoints returns checkpoint headers, oldest first.
func (d *Driver) ListCheckpoints(_ context.Context) ([]storage.Checkpoint, error) {
	out := []storage.Checkpoint{}

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(checkpointPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var header struct {
				storage.Checkpoint
			}
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &header)
			})
			if err != nil {
				return err
			}
			out = append(out, header.Checkpoint)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	slices.SortFunc(out, storage.CompareCheckpoints)
	return out, nil
}

// AppendToLog writes entries in one transaction.
func (d *Driver) AppendToLog(_ context.Context, entries []state.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pos := d.next
	err := d.db.Update(func(txn *badger.Txn) error {
		for i, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding log entry %d: %w", e.Seq, err)
			}
			if err := txn.Set(logKey(pos+uint64(i)), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to log: %w", err)
	}

	d.next = pos + uint64(len(entries))
	return nil
}

// ReadLog iterates the log prefix in key order.
func (d *Driver) ReadLog(_ context.Context) ([]state.Entry, error) {
	out := []state.Entry{}

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(logPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e state.Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debugf(format, args...)
}
