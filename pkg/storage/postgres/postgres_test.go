package postgres_test

import (
	"context"
	"database/sql"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/storage"
	"github.com/papercomputeco/memstate/pkg/storage/postgres"
	testutils "github.com/papercomputeco/memstate/pkg/utils/test"
)

// These specs need a live database: set MEMSTATE_TEST_POSTGRES_DSN to run them.
var _ = testutils.DescribeStorageDriver("postgres", func() storage.Driver {
	dsn := os.Getenv("MEMSTATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("MEMSTATE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	d, err := postgres.NewDriver(ctx, dsn)
	Expect(err).NotTo(HaveOccurred())

	// Each test starts from empty tables.
	truncate(ctx, dsn)
	return d
})

var _ = Describe("NewDriver", func() {
	It("fails when the database is unreachable", func() {
		_, err := postgres.NewDriver(context.Background(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
		Expect(err).To(MatchError(ContainSubstring("failed to ping database")))
	})
})

func truncate(ctx context.Context, dsn string) {
	db, err := sql.Open("pgx", dsn)
	Expect(err).NotTo(HaveOccurred())
	defer db.Close()

	_, err = db.ExecContext(ctx, "TRUNCATE memstate_checkpoints, memstate_log")
	Expect(err).NotTo(HaveOccurred())
}
