package sqlitevec_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	testutils "github.com/papercomputeco/memstate/pkg/utils/test"
	"github.com/papercomputeco/memstate/pkg/vector"
	"github.com/papercomputeco/memstate/pkg/vector/sqlitevec"
)

var _ = testutils.DescribeVectorDriver("sqlitevec", func() vector.Driver {
	driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	return driver
})

var _ = Describe("SQLite vec driver", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	Describe("NewDriver", func() {
		It("returns an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{Dimensions: 4}, logger)
			Expect(err).To(MatchError(ContainSubstring("database path is required")))
		})

		It("returns an error when dimensions are not configured", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger)
			Expect(err).To(HaveOccurred())
		})

		It("accepts a nil logger", func() {
			driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Close()).To(Succeed())
		})
	})

	Describe("Interface compliance", func() {
		It("implements vector.Driver", func() {
			var _ vector.Driver = (*sqlitevec.Driver)(nil)
		})
	})

	It("rejects embeddings of the wrong width", func() {
		driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, logger)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		err = driver.Add(context.Background(), []vector.Document{{ID: "a", Embedding: []float32{1, 2}}})
		Expect(err).To(MatchError(vector.ErrDimensions))
		Expect(err).To(MatchError(ContainSubstring("has 2 dimensions, want 4")))
	})

	It("persists documents across reopen", func() {
		path := filepath.Join(GinkgoT().TempDir(), "vectors.db")
		ctx := context.Background()

		driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: path, Dimensions: 4}, logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Add(ctx, []vector.Document{
			{ID: "a", Hash: "ha", Embedding: []float32{0, 0, 1, 0}},
		})).To(Succeed())
		Expect(driver.Close()).To(Succeed())

		driver, err = sqlitevec.NewDriver(sqlitevec.Config{DBPath: path, Dimensions: 4}, logger)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		results, err := driver.Query(ctx, []float32{0, 0, 1, 0}, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("a"))
		Expect(results[0].Score).To(BeNumerically("~", 1, 0.001))
	})
})
