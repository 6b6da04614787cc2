// Package storageutils is the storage utility package
package storageutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/storage"
	"github.com/papercomputeco/memstate/pkg/storage/badger"
	"github.com/papercomputeco/memstate/pkg/storage/file"
	"github.com/papercomputeco/memstate/pkg/storage/inmemory"
	"github.com/papercomputeco/memstate/pkg/storage/libsql"
	"github.com/papercomputeco/memstate/pkg/storage/postgres"
	"github.com/papercomputeco/memstate/pkg/storage/remote"
	"github.com/papercomputeco/memstate/pkg/storage/sqlite"
)

// Provider names accepted by NewDriver.
const (
	ProviderInMemory = "inmemory"
	ProviderFile     = "file"
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderLibSQL   = "libsql"
	ProviderBadger   = "badger"
	ProviderRemote   = "remote"
)

// Providers lists every supported storage provider.
var Providers = []string{
	ProviderInMemory,
	ProviderFile,
	ProviderSQLite,
	ProviderPostgres,
	ProviderLibSQL,
	ProviderBadger,
	ProviderRemote,
}

type NewDriverOpts struct {
	// Provider selects the driver implementation.
	Provider string

	// Target is the provider specific location: a directory for file and
	// badger, a database path for sqlite and libsql, a connection string for
	// postgres, or a base URL for remote.
	Target string

	// Token authenticates against a remote store.
	Token string

	Logger *zap.Logger
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.Provider {
	case "", ProviderInMemory:
		return inmemory.NewDriver(), nil
	case ProviderFile:
		return file.NewDriver(o.Target)
	case ProviderSQLite:
		return sqlite.NewDriver(ctx, o.Target)
	case ProviderPostgres:
		return postgres.NewDriver(ctx, o.Target)
	case ProviderLibSQL:
		return libsql.NewDriver(ctx, o.Target)
	case ProviderBadger:
		return badger.NewDriver(badger.Config{Path: o.Target, SyncWrites: true, Logger: o.Logger})
	case ProviderRemote:
		return remote.NewDriver(remote.Config{BaseURL: o.Target, Token: o.Token})
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", o.Provider)
	}
}
