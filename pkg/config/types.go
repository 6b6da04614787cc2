package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent memstate configuration stored as
// config.toml in the .memstate/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version" validate:"gte=0"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Context     ContextConfig     `toml:"context"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Worker      WorkerConfig      `toml:"worker"`
}

// StorageConfig selects where checkpoints and the patch log are persisted.
// An empty target for the file, badger and sqlite providers resolves to a
// path inside the .memstate/ directory.
type StorageConfig struct {
	Provider string `toml:"provider,omitempty" validate:"omitempty,oneof=inmemory file sqlite postgres libsql badger remote"`
	Target   string `toml:"target,omitempty"`
	Token    string `toml:"token,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty" validate:"required"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty" validate:"omitempty,url"`
}

// ContextConfig holds defaults for the context view handed to a model.
type ContextConfig struct {
	Budget         int  `toml:"budget,omitempty" validate:"gte=0"`
	HistoryDepth   int  `toml:"history_depth,omitempty" validate:"gte=0"`
	IncludeHistory bool `toml:"include_history,omitempty"`
}

// VectorStoreConfig holds vector store settings. An empty provider disables
// similarity ranking in the context view.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty" validate:"omitempty,oneof=inmemory sqlitevec qdrant"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty" validate:"omitempty,oneof=ollama openai"`
	Target     string `toml:"target,omitempty" validate:"omitempty,url"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
}

// EventStreamConfig selects where batch applied events are published.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty" validate:"omitempty,oneof=nop kafka"`
	Brokers  []string `toml:"brokers,omitempty" validate:"required_if=Provider kafka,dive,hostname_port"`
	Topic    string   `toml:"topic,omitempty"`
}

// WorkerConfig sizes the background pool that persists and publishes
// applied batches.
type WorkerConfig struct {
	NumWorkers uint `toml:"num_workers,omitempty" validate:"lte=64"`
	QueueSize  uint `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": stringKey(func(c *Config) *string { return &c.Storage.Provider }),
	"storage.target":   stringKey(func(c *Config) *string { return &c.Storage.Target }),
	"storage.token":    stringKey(func(c *Config) *string { return &c.Storage.Token }),

	"api.listen":        stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"context.budget":          intKey("context.budget", func(c *Config) *int { return &c.Context.Budget }),
	"context.history_depth":   intKey("context.history_depth", func(c *Config) *int { return &c.Context.HistoryDepth }),
	"context.include_history": boolKey("context.include_history", func(c *Config) *bool { return &c.Context.IncludeHistory }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.api_key":    stringKey(func(c *Config) *string { return &c.VectorStore.APIKey }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.api_key":    stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.EventStream.Brokers = append(c.EventStream.Brokers, b)
				}
			}
			return nil
		},
	},
	"eventstream.topic": stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"worker.num_workers": uintKey("worker.num_workers", func(c *Config) *uint { return &c.Worker.NumWorkers }),
	"worker.queue_size":  uintKey("worker.queue_size", func(c *Config) *uint { return &c.Worker.QueueSize }),
}

// orderedKeys lists configKeys in TOML section order.
var orderedKeys = []string{
	"storage.provider",
	"storage.target",
	"storage.token",
	"api.listen",
	"client.api_target",
	"context.budget",
	"context.history_depth",
	"context.include_history",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"vector_store.api_key",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"worker.num_workers",
	"worker.queue_size",
}
