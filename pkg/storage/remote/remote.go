// Package remote implements storage.Driver as a client of a memstate API
// server's /storage endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

// DefaultTimeout bounds every request to the remote store.
const DefaultTimeout = 30 * time.Second

// Config configures the remote driver.
type Config struct {
	// BaseURL is the memstate API URL, e.g. "http://localhost:8081".
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// SaveRequest is the body of POST /storage/checkpoints.
type SaveRequest struct {
	Label string       `json:"label,omitempty"`
	State *state.State `json:"state"`
}

// Driver talks to a remote memstate storage API.
type Driver struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDriver creates a remote driver.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote storage requires a base URL")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid remote storage URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &Driver{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: client,
	}, nil
}

// SaveCheckpoint posts st to the remote store.
func (d *Driver) SaveCheckpoint(ctx context.Context, st *state.State, label string) (storage.Checkpoint, error) {
	var cp storage.Checkpoint
	err := d.do(ctx, http.MethodPost, "/storage/checkpoints", SaveRequest{Label: label, State: st.Snapshot()}, &cp)
	if err != nil {
		return storage.Checkpoint{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return cp, nil
}

// LoadCheckpoint fetches a checkpoint by id.
func (d *Driver) LoadCheckpoint(ctx context.Context, id string) (*storage.Snapshot, error) {
	var snap storage.Snapshot
	err := d.do(ctx, http.MethodGet, "/storage/checkpoints/"+url.PathEscape(id), nil, &snap)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, storage.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}
	if snap.State == nil {
		snap.State = state.New()
	}
	return &snap, nil
}

// ListCheckpoints fetches every checkpoint header.
func (d *Driver) ListCheckpoints(ctx context.Context) ([]storage.Checkpoint, error) {
	out := []storage.Checkpoint{}
	if err := d.do(ctx, http.MethodGet, "/storage/checkpoints", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return out, nil
}

// AppendToLog posts entries to the remote log.
func (d *Driver) AppendToLog(ctx context.Context, entries []state.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := d.do(ctx, http.MethodPost, "/storage/log", entries, nil); err != nil {
		return fmt.Errorf("failed to append to log: %w", err)
	}
	return nil
}

// ReadLog fetches the remote log.
func (d *Driver) ReadLog(ctx context.Context) ([]state.Entry, error) {
	out := []state.Entry{}
	if err := d.do(ctx, http.MethodGet, "/storage/log", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return out, nil
}

// Close releases idle connections.
func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote store returned status %d: %s", e.code, e.body)
}

func (d *Driver) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
