// Package file provides a local-file storage driver: one JSON document per
// checkpoint and an append-only JSONL mutation log.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

// LogFileName is the name of the JSONL mutation log inside the directory.
const LogFileName = "log.jsonl"

const (
	checkpointDir = "checkpoints"

	// maxLogLine bounds a single encoded log entry.
	maxLogLine = 16 * 1024 * 1024
)

// Driver implements storage.Driver on a directory.
type Driver struct {
	dir string

	// mu serializes log appends and checkpoint writes
	mu sync.Mutex
}

// NewDriver creates the directory layout under dir if needed.
func NewDriver(dir string) (*Driver, error) {
	if err := os.MkdirAll(filepath.Join(dir, checkpointDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &Driver{dir: dir}, nil
}

// LogPath returns the path of the JSONL mutation log.
func (d *Driver) LogPath() string {
	return filepath.Join(d.dir, LogFileName)
}

func (d *Driver) checkpointPath(id string) string {
	return filepath.Join(d.dir, checkpointDir, id+".json")
}

// SaveCheckpoint writes st to a new checkpoint file.
func (d *Driver) SaveCheckpoint(_ context.Context, st *state.State, label string) (storage.Checkpoint, error) {
	cp := storage.NewCheckpoint(label)

	data, err := json.MarshalIndent(storage.Snapshot{Checkpoint: cp, State: st.Snapshot()}, "", "  ")
	if err != nil {
		return storage.Checkpoint{}, fmt.Errorf("encoding checkpoint: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := writeAtomic(d.checkpointPath(cp.ID), data); err != nil {
		return storage.Checkpoint{}, err
	}
	return cp, nil
}

// LoadCheckpoint reads a checkpoint file by id.
func (d *Driver) LoadCheckpoint(_ context.Context, id string) (*storage.Snapshot, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, storage.NotFoundError{ID: id}
	}

	data, err := os.ReadFile(d.checkpointPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", id, err)
	}

	var snap storage.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", id, err)
	}
	if snap.State == nil {
		snap.State = state.New()
	}
	return &snap, nil
}

// ListCheckpoints reads every checkpoint header, oldest first.
func (d *Driver) ListCheckpoints(ctx context.Context) ([]storage.Checkpoint, error) {
	entries, err := os.ReadDir(filepath.Join(d.dir, checkpointDir))
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}

	var out []storage.Checkpoint
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok {
			continue
		}
		snap, err := d.LoadCheckpoint(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, snap.Checkpoint)
	}

	slices.SortFunc(out, storage.CompareCheckpoints)
	return out, nil
}

// AppendToLog appends one JSON line per entry.
func (d *Driver) AppendToLog(_ context.Context, entries []state.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding log entry %d: %w", e.Seq, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(buf.String()); err != nil {
		return fmt.Errorf("appending to log: %w", err)
	}
	return nil
}

// ReadLog returns the log entries in file order.
func (d *Driver) ReadLog(_ context.Context) ([]state.Entry, error) {
	f, err := os.Open(d.LogPath())
	if errors.Is(err, fs.ErrNotExist) {
		return []state.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	return ReadEntries(f)
}

// Close is a no-op; files are opened per call.
func (d *Driver) Close() error {
	return nil
}

// ReadEntries decodes a JSONL mutation log. Blank lines are skipped.
func ReadEntries(r io.Reader) ([]state.Entry, error) {
	out := []state.Entry{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var e state.Entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("decoding log line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return out, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming checkpoint: %w", err)
	}
	return nil
}
