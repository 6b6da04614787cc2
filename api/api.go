package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/api/mcp"
	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/storage"
)

// Server is the API server for one memstate session.
type Server struct {
	config  Config
	session *memory.Session
	storer  storage.Driver
	logger  *zap.Logger
	app     *fiber.App
}

// NewServer creates a new API server. The storer is shared with the engine
// and worker pool; it backs GET /log and the /storage surface, both of which
// are skipped when it is nil.
func NewServer(config Config, session *memory.Session, storer storage.Driver, logger *zap.Logger) (*Server, error) {
	if session == nil {
		return nil, errors.New("memory session is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		session: session,
		storer:  storer,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)

	app.Get("/state", s.handleGetState)
	app.Get("/state/node/:id", s.handleGetNode)
	app.Post("/patches", s.handleApplyPatches)
	app.Get("/gate", s.handleGateAll)
	app.Get("/gate/:kind", s.handleGate)
	app.Get("/context", s.handleContext)

	app.Get("/checkpoints", s.handleListCheckpoints)
	app.Post("/checkpoints", s.handleCreateCheckpoint)
	app.Post("/checkpoints/:id/restore", s.handleRestoreCheckpoint)
	app.Post("/heal", s.handleHeal)
	app.Get("/rollback/:id", s.handleRollbackPlan)
	app.Post("/rollback/:id", s.handleRollback)
	app.Get("/log", s.handleLog)

	if storer != nil {
		st := app.Group("/storage", s.requireStorageToken)
		st.Post("/checkpoints", s.handleStorageSave)
		st.Get("/checkpoints", s.handleStorageList)
		st.Get("/checkpoints/:id", s.handleStorageLoad)
		st.Post("/log", s.handleStorageAppend)
		st.Get("/log", s.handleStorageRead)
	}

	if config.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Session: session,
			Context: config.Context,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Handler exposes the server as a net/http handler.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("session", s.session.Name()),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
