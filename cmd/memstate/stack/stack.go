// Package stack resolves a memstate configuration into the storage, index
// and publishing components the commands run on.
package stack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/config"
	"github.com/papercomputeco/memstate/pkg/contextbuilder"
	"github.com/papercomputeco/memstate/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/memstate/pkg/embeddings/utils"
	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/eventstream"
	"github.com/papercomputeco/memstate/pkg/eventstream/kafka"
	"github.com/papercomputeco/memstate/pkg/eventstream/nop"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
	"github.com/papercomputeco/memstate/pkg/storage/file"
	storageutils "github.com/papercomputeco/memstate/pkg/storage/utils"
	vectorutils "github.com/papercomputeco/memstate/pkg/vector/utils"
)

// Default locations inside the .memstate/ directory.
const (
	FileStoreDir  = "store"
	BadgerDir     = "badger"
	SQLiteFile    = "memstate.db"
	SQLiteVecFile = "vectors.db"
)

const providerKafka = "kafka"

// LoadConfig merges defaults, config.toml, MEMSTATE_* variables and the
// flags of cmd named by keys, and returns the config with the resolved
// .memstate/ directory.
func LoadConfig(cmd *cobra.Command, configDir string, keys []string) (*config.Config, string, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, keys)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, "", err
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving config dir: %w", err)
	}
	return cfg, dir, nil
}

// StorageTarget returns the configured storage target, falling back to a
// location under dir for the providers that keep local files.
func StorageTarget(c config.StorageConfig, dir string) string {
	if c.Target != "" {
		return c.Target
	}

	switch c.Provider {
	case storageutils.ProviderFile:
		return filepath.Join(dir, FileStoreDir)
	case storageutils.ProviderBadger:
		return filepath.Join(dir, BadgerDir)
	case storageutils.ProviderSQLite:
		return filepath.Join(dir, SQLiteFile)
	default:
		return ""
	}
}

// OpenStorage creates the configured storage driver.
func OpenStorage(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) (storage.Driver, error) {
	target := StorageTarget(cfg.Storage, dir)

	driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		Provider: cfg.Storage.Provider,
		Target:   target,
		Token:    cfg.Storage.Token,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", providerName(cfg.Storage.Provider), err)
	}

	logger.Info("using storage",
		zap.String("provider", providerName(cfg.Storage.Provider)),
		zap.String("target", target),
	)
	return driver, nil
}

// OpenIndex creates the similarity index. It returns nil when no vector
// store provider is configured.
func OpenIndex(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) (*contextbuilder.VectorIndex, error) {
	vs := cfg.VectorStore
	if vs.Provider == "" {
		return nil, nil
	}

	target := vs.Target
	if target == "" && vs.Provider == vectorutils.ProviderSQLiteVec {
		target = filepath.Join(dir, SQLiteVecFile)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimensions:   int(cfg.Embedding.Dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: vs.Provider,
		Target:       target,
		APIKey:       vs.APIKey,
		Collection:   vs.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       logger,
	})
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	logger.Info("using vector index",
		zap.String("vector_store", vs.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
	)
	return contextbuilder.NewVectorIndex(vectors, embedder, logger), nil
}

// OpenPublisher creates the configured batch event publisher.
func OpenPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	if cfg.EventStream.Provider != providerKafka {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.EventStream.Brokers,
		Topic:   cfg.EventStream.Topic,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	logger.Info("publishing batch events to kafka",
		zap.Strings("brokers", cfg.EventStream.Brokers),
		zap.String("topic", cfg.EventStream.Topic),
	)
	return p, nil
}

// ContextOptions returns the context view defaults from cfg.
func ContextOptions(cfg *config.Config) contextbuilder.Options {
	return contextbuilder.Options{
		Budget:         cfg.Context.Budget,
		IncludeHistory: cfg.Context.IncludeHistory,
		HistoryDepth:   cfg.Context.HistoryDepth,
	}
}

// ReadLogFile reads a JSONL mutation log from path.
func ReadLogFile(path string) ([]state.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	return file.ReadEntries(f)
}

// Source names where a command reads its mutation log from: a JSONL file
// when LogFile is set, otherwise the configured storage driver.
type Source struct {
	LogFile    string
	Checkpoint string
}

// Load rebuilds a state from src. When src.Checkpoint is set the log is
// replayed onto that checkpoint, skipping the entries it already holds.
// driver may be nil when only a log file is read.
func Load(ctx context.Context, eng *engine.Engine, driver storage.Driver, src Source) (*state.State, error) {
	var (
		entries []state.Entry
		err     error
	)
	switch {
	case src.LogFile != "":
		entries, err = ReadLogFile(src.LogFile)
	case driver != nil:
		entries, err = driver.ReadLog(ctx)
	default:
		return nil, errors.New("no log file or storage to read from")
	}
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}

	var base *state.State
	if src.Checkpoint != "" {
		base, err = eng.Load(ctx, src.Checkpoint)
		if err != nil {
			return nil, err
		}
	}

	return eng.Replay(entries, base)
}

func providerName(p string) string {
	if p == "" {
		return storageutils.ProviderInMemory
	}
	return p
}

// LoadState opens storage when src needs it, rebuilds the state and closes
// storage again. Commands that only inspect a log use it.
func LoadState(ctx context.Context, cfg *config.Config, dir string, src Source, logger *zap.Logger) (*state.State, error) {
	var driver storage.Driver
	if src.LogFile == "" || src.Checkpoint != "" {
		d, err := OpenStorage(ctx, cfg, dir, logger)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		driver = d
	}

	eng := engine.New(engine.Config{Storage: driver, Logger: logger})
	return Load(ctx, eng, driver, src)
}
