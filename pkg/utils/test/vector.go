package testutils

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/vector"
)

// DescribeVectorDriver registers the behaviours every vector.Driver must
// share. Embeddings are four wide, so newDriver must return a driver
// configured for four dimensions.
func DescribeVectorDriver(name string, newDriver func() vector.Driver) bool {
	return Describe(name+" vector driver contract", func() {
		var (
			driver vector.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = nil
			driver = newDriver()
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "n1", Hash: "h1", Embedding: []float32{1, 0, 0, 0}},
				{ID: "n2", Hash: "h2", Embedding: []float32{0.9, 0.1, 0, 0}},
				{ID: "n3", Hash: "h3", Embedding: []float32{0, 1, 0, 0}},
				{ID: "n4", Hash: "h4", Embedding: []float32{0, 0, 1, 0}},
			})).To(Succeed())
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		It("does nothing for an empty add", func() {
			Expect(driver.Add(ctx, nil)).To(Succeed())
		})

		It("returns the closest documents first", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("n1"))
			Expect(results[0].Hash).To(Equal("h1"))
			Expect(results[1].ID).To(Equal("n2"))
			Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
		})

		It("defaults topK to 10", func() {
			results, err := driver.Query(ctx, []float32{0, 1, 0, 0}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))
			Expect(results[0].ID).To(Equal("n3"))
			for i := 1; i < len(results); i++ {
				Expect(results[i-1].Score).To(BeNumerically(">=", results[i].Score))
			}
		})

		It("replaces a document with the same id", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "n1", Hash: "h1-updated", Embedding: []float32{0, 0, 0, 1}},
			})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"n1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Hash).To(Equal("h1-updated"))
			Expect(docs[0].Embedding).To(HaveLen(4))
			Expect(docs[0].Embedding[3]).To(BeNumerically("~", 1, 0.001))

			results, err := driver.Query(ctx, []float32{0, 0, 0, 1}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].ID).To(Equal("n1"))
		})

		It("gets documents and skips unknown ids", func() {
			docs, err := driver.Get(ctx, []string{"n2", "missing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("n2"))
			Expect(docs[0].Embedding[0]).To(BeNumerically("~", 0.9, 0.001))
		})

		It("returns nothing for an empty get", func() {
			docs, err := driver.Get(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())
		})

		It("deletes documents from gets and queries", func() {
			Expect(driver.Delete(ctx, []string{"n1", "missing"})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"n1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())

			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			for _, r := range results {
				Expect(r.ID).NotTo(Equal("n1"))
			}
		})
	})
}
