package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/vector"
	"github.com/papercomputeco/memstate/pkg/vector/inmemory"
	"github.com/papercomputeco/memstate/pkg/vector/qdrant"
	"github.com/papercomputeco/memstate/pkg/vector/sqlitevec"
)

const (
	ProviderInMemory  = "inmemory"
	ProviderSQLiteVec = "sqlitevec"
	ProviderQdrant    = "qdrant"
)

// Providers lists the supported vector store providers.
var Providers = []string{ProviderInMemory, ProviderSQLiteVec, ProviderQdrant}

type NewVectorDriverOpts struct {
	ProviderType string

	// Target is the database path for sqlitevec and the gRPC address for qdrant.
	Target string

	APIKey     string
	Collection string
	Dimensions uint
	Logger     *zap.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case ProviderInMemory:
		return inmemory.NewDriver(), nil
	case ProviderSQLiteVec:
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case ProviderQdrant:
		return qdrant.NewDriver(ctx, qdrant.Config{
			Addr:       o.Target,
			APIKey:     o.APIKey,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
