package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/api"
	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/storage"
	"github.com/papercomputeco/memstate/pkg/storage/inmemory"
	"github.com/papercomputeco/memstate/pkg/storage/remote"
	testutils "github.com/papercomputeco/memstate/pkg/utils/test"
)

// newBackedServer serves the /storage surface of an API server backed by an
// in-memory driver.
func newBackedServer(token string) *httptest.Server {
	backing := inmemory.NewDriver()
	session, err := memory.NewSession(memory.Config{Engine: engine.New(engine.Config{Storage: backing})})
	Expect(err).NotTo(HaveOccurred())

	srv, err := api.NewServer(api.Config{StorageToken: token, DisableMCP: true}, session, backing, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())

	ts := httptest.NewServer(srv.Handler())
	DeferCleanup(ts.Close)
	return ts
}

var _ = testutils.DescribeStorageDriver("remote", func() storage.Driver {
	ts := newBackedServer("token")
	driver, err := remote.NewDriver(remote.Config{BaseURL: ts.URL + "/", Token: "token"})
	Expect(err).NotTo(HaveOccurred())
	return driver
})

var _ = Describe("Remote driver", func() {
	It("requires a base URL", func() {
		_, err := remote.NewDriver(remote.Config{})
		Expect(err).To(MatchError(ContainSubstring("requires a base URL")))
	})

	It("surfaces authorization failures", func() {
		ts := newBackedServer("right")
		driver, err := remote.NewDriver(remote.Config{BaseURL: ts.URL, Token: "wrong"})
		Expect(err).NotTo(HaveOccurred())

		_, err = driver.ReadLog(context.Background())
		Expect(err).To(MatchError(ContainSubstring("status 401")))
	})

	It("does not send a request for an empty append", func() {
		calls := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		DeferCleanup(ts.Close)

		driver, err := remote.NewDriver(remote.Config{BaseURL: ts.URL})
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.AppendToLog(context.Background(), nil)).To(Succeed())
		Expect(calls).To(BeZero())
	})

	It("uses the caller's HTTP client", func() {
		ts := newBackedServer("")
		client := &http.Client{}
		driver, err := remote.NewDriver(remote.Config{BaseURL: ts.URL, HTTPClient: client})
		Expect(err).NotTo(HaveOccurred())

		cps, err := driver.ListCheckpoints(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(cps).To(BeEmpty())
	})
})
