// Package mcp exposes a memstate session to models over the Model Context
// Protocol. A model is one more patch proposer: its batches go through the
// same validation as any other caller's.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/contextbuilder"
	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/utils"
)

type Config struct {
	// Session is the memory state the tools read and patch.
	Session *memory.Session

	// Context holds the defaults for memory_context.
	Context contextbuilder.Options

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	if c.Session == nil {
		return nil, errors.New("memory session is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{config: c}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "memstate",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        contextToolName,
		Description: contextDescription,
	}, s.handleContext)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        proposeToolName,
		Description: proposeDescription,
	}, s.handlePropose)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        gateToolName,
		Description: gateDescription,
	}, s.handleGate)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, e.g. for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
