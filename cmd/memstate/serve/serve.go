// Package servecmder provides the serve command that runs the memstate API
// and MCP server over one managed session.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/api"
	"github.com/papercomputeco/memstate/cmd/memstate/stack"
	"github.com/papercomputeco/memstate/pkg/cliui"
	"github.com/papercomputeco/memstate/pkg/config"
	"github.com/papercomputeco/memstate/pkg/contextbuilder"
	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/eventstream"
	"github.com/papercomputeco/memstate/pkg/logger"
	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/metrics"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
	"github.com/papercomputeco/memstate/pkg/worker"
)

type ServeCommander struct {
	configDir  string
	debug      bool
	jsonLogs   bool
	logFile    string
	session    string
	checkpoint string
	disableMCP bool

	// Registered flag targets. The merged values are read back from viper.
	listen          string
	storageProvider string
	storageTarget   string
	storageToken    string
	budget          int
	historyDepth    int
	vectorProvider  string
	vectorTarget    string
	embeddingProv   string
	embeddingTarget string
	embeddingModel  string
	embeddingDims   uint
	eventsProvider  string
	eventsBrokers   string
	eventsTopic     string
	numWorkers      uint

	out    io.Writer
	cfg    *config.Config
	dir    string
	logger *zap.Logger
}

const serveLongDesc string = `Run the memstate server.

The server owns one memory session. On start it replays the mutation log
from the configured storage (optionally onto a checkpoint) and then serves:
  /state, /patches, /gate, /context    read, patch and gate the session
  /checkpoints, /heal, /rollback, /log  recovery and history
  /storage                               the remote storage surface
  /metrics                               Prometheus metrics
  /mcp                                   MCP tools for a model

Flags override MEMSTATE_* environment variables, which override config.toml.

Examples:
  memstate serve
  memstate serve --storage-provider sqlite --listen :9090
  memstate serve --vector-store-provider sqlitevec --embedding-provider ollama`

const serveShortDesc string = "Run the memstate server"

var flagKeys = []string{
	config.FlagListen,
	config.FlagStorageProvider,
	config.FlagStorageTarget,
	config.FlagStorageToken,
	config.FlagBudget,
	config.FlagHistoryDepth,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagEventStreamProv,
	config.FlagEventBrokers,
	config.FlagEventTopic,
	config.FlagNumWorkers,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			cmder.cfg, cmder.dir, err = stack.LoadConfig(cmd, cmder.configDir, flagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.ErrOrStderr()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageTarget, &cmder.storageTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageToken, &cmder.storageToken)
	config.AddIntFlag(cmd, config.Flags, config.FlagBudget, &cmder.budget)
	config.AddIntFlag(cmd, config.Flags, config.FlagHistoryDepth, &cmder.historyDepth)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStreamProv, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventTopic, &cmder.eventsTopic)
	config.AddUintFlag(cmd, config.Flags, config.FlagNumWorkers, &cmder.numWorkers)

	cmd.Flags().StringVar(&cmder.session, "session", memory.DefaultSessionName, "Session name used in events and logs")
	cmd.Flags().StringVar(&cmder.checkpoint, "from-checkpoint", "", "Replay the log onto this checkpoint instead of an empty state")
	cmd.Flags().BoolVar(&cmder.disableMCP, "no-mcp", false, "Do not mount the MCP endpoint")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write logs as JSON")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithCaller(true),
	)
	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithWriter(f),
			logger.WithDebug(c.debug),
			logger.WithJSON(true),
			logger.WithCaller(true),
		))
	}
	defer c.logger.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	var storer storage.Driver
	err := cliui.Step(c.out, "Opening storage", func() error {
		var err error
		storer, err = stack.OpenStorage(ctx, c.cfg, c.dir, c.logger)
		return err
	})
	if err != nil {
		return err
	}
	defer storer.Close()

	eng := engine.New(engine.Config{
		Storage: storer,
		Metrics: recorder,
		Logger:  c.logger,
	})

	var initial *state.State
	err = cliui.Step(c.out, "Replaying mutation log", func() error {
		var err error
		initial, err = stack.Load(ctx, eng, storer, stack.Source{Checkpoint: c.checkpoint})
		return err
	})
	if err != nil {
		return err
	}
	c.logger.Info("restored session state",
		zap.Int("nodes", len(initial.Raw)),
		zap.Int("entries", len(initial.History)),
	)

	var index *contextbuilder.VectorIndex
	err = cliui.Step(c.out, "Preparing vector index", func() error {
		var err error
		index, err = stack.OpenIndex(ctx, c.cfg, c.dir, c.logger)
		if err != nil || index == nil {
			return err
		}
		return index.Sync(ctx, initial, nil)
	})
	if err != nil {
		if index != nil {
			index.Close()
		}
		return err
	}
	if index != nil {
		defer index.Close()
	}

	publisher, err := stack.OpenPublisher(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := c.newPool(storer, index, publisher, recorder)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessionConfig := memory.Config{
		Name:    c.session,
		Engine:  eng,
		Pool:    pool,
		Initial: initial,
		Logger:  c.logger,
	}
	if index != nil {
		sessionConfig.Index = index
	}
	session, err := memory.NewSession(sessionConfig)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer session.Close()

	apiConfig := api.Config{
		ListenAddr:   c.cfg.API.Listen,
		Context:      stack.ContextOptions(c.cfg),
		Gatherer:     registry,
		StorageToken: c.cfg.Storage.Token,
		DisableMCP:   c.disableMCP,
	}
	server, err := api.NewServer(apiConfig, session, storer, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	return errors.Join(server.Shutdown(), session.Close())
}

func (c *ServeCommander) newPool(storer storage.Driver, index *contextbuilder.VectorIndex, publisher eventstream.Publisher, recorder *metrics.Recorder) (*worker.Pool, error) {
	wc := &worker.Config{
		Storage:    storer,
		Publisher:  publisher,
		Metrics:    recorder,
		NumWorkers: c.cfg.Worker.NumWorkers,
		QueueSize:  c.cfg.Worker.QueueSize,
		Logger:     c.logger,
	}
	if index != nil {
		wc.Index = index
	}

	pool, err := worker.NewPool(wc)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return pool, nil
}
