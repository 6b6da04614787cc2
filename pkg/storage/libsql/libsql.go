// Package libsql provides a storage driver for libSQL, either a local file
// or a remote Turso database.
package libsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	_ "github.com/tursodatabase/go-libsql" // register the libSQL driver as "libsql"

	"github.com/papercomputeco/memstate/pkg/storage/sqldriver"
)

// Driver implements storage.Driver using libSQL.
type Driver struct {
	*sqldriver.Driver
}

// NewDriver opens a libSQL database. dsn is either a local path, which is
// opened as "file:<path>", or a libsql:// / https:// URL with an optional
// authToken query parameter.
func NewDriver(ctx context.Context, dsn string) (*Driver, error) {
	db, err := sql.Open("libsql", DSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	drv, err := sqldriver.New(ctx, dialect.SQLite, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{Driver: drv}, nil
}

// DSN normalizes a bare path into a libSQL file URL.
func DSN(dsn string) string {
	for _, scheme := range []string{"file:", "libsql://", "https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(dsn, scheme) {
			return dsn
		}
	}
	return "file:" + dsn
}
