// Package api provides the HTTP API for reading, patching and gating a
// memstate session, plus the storage surface used by remote drivers.
package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/memstate/pkg/contextbuilder"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Context holds the defaults for GET /context. Query parameters override
	// them per request.
	Context contextbuilder.Options

	// Gatherer backs /metrics. The route is not mounted when nil.
	Gatherer prometheus.Gatherer

	// StorageToken, when set, is required as a bearer token on /storage.
	StorageToken string

	// DisableMCP skips mounting /mcp.
	DisableMCP bool
}
