package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/memory"
	"github.com/papercomputeco/memstate/pkg/metrics"
	"github.com/papercomputeco/memstate/pkg/patch"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
	"github.com/papercomputeco/memstate/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/memstate/pkg/utils/test"
)

func encodeBatch(muts ...state.Mutation) string {
	data, err := patch.EncodeBatch(muts)
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

var _ = Describe("Server", func() {
	var (
		server  *Server
		session *memory.Session
		store   *inmemory.Driver
		reg     *prometheus.Registry
	)

	newServer := func(cfg Config) *Server {
		s, err := NewServer(cfg, session, store, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	do := func(method, path, body string) (*http.Response, string) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, string(data)
	}

	decode := func(body string, v any) {
		ExpectWithOffset(1, json.Unmarshal([]byte(body), v)).To(Succeed())
	}

	BeforeEach(func() {
		store = inmemory.NewDriver()
		reg = prometheus.NewRegistry()
		eng := engine.New(engine.Config{
			Storage: store,
			Clock:   testutils.SteppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Second),
			Metrics: metrics.NewRecorder(reg),
		})

		var err error
		session, err = memory.NewSession(memory.Config{Engine: eng})
		Expect(err).NotTo(HaveOccurred())

		server = newServer(Config{ListenAddr: ":0", Gatherer: reg})
	})

	It("requires a session", func() {
		_, err := NewServer(Config{}, nil, store, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("memory session is required")))
	})

	It("answers ping", func() {
		resp, body := do(http.MethodGet, "/ping", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(Equal(`"pong"`))
	})

	Describe("POST /patches", func() {
		It("applies a batch and reports the new state", func() {
			unknown := testutils.NewTestNode("u")
			unknown.Kind = state.KindUnknown

			resp, body := do(http.MethodPost, "/patches", encodeBatch(
				testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("a")),
				testutils.MustNodeMutation(state.OpAdd, unknown),
			))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out PatchResponse
			decode(body, &out)
			Expect(out.Applied).To(Equal(2))
			Expect(out.HistoryLength).To(Equal(2))
			Expect(out.Touched).To(Equal([]string{"a", "u"}))
			Expect(out.Unknowns).To(Equal([]string{"u"}))
			Expect(out.CanExecute).To(HaveKeyWithValue(state.KindPlanning, false))
		})

		It("rejects malformed JSON with the failing field", func() {
			resp, body := do(http.MethodPost, "/patches", `{"op":"add"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			var out ErrorResponse
			decode(body, &out)
			Expect(out.Field).To(Equal("batch"))
		})

		It("rejects an invalid mutation by index and leaves the state alone", func() {
			resp, body := do(http.MethodPost, "/patches",
				`[{"op":"add","path":"/raw/a","value":{"id":"a","kind":"fact","status":"open"}},{"op":"add","path":"/nope/b","value":1}]`)
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			var out ErrorResponse
			decode(body, &out)
			Expect(out.Index).NotTo(BeNil())
			Expect(*out.Index).To(Equal(1))
			Expect(out.Path).To(Equal("/nope/b"))
			Expect(session.State().Raw).To(BeEmpty())
		})
	})

	Describe("reads", func() {
		BeforeEach(func() {
			_, err := session.Apply(context.Background(), []state.Mutation{
				testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("a")),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the state", func() {
			resp, body := do(http.MethodGet, "/state", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var st state.State
			decode(body, &st)
			Expect(st.Raw).To(HaveKey("a"))
			Expect(st.History).To(HaveLen(1))
		})

		It("returns a node or 404", func() {
			resp, body := do(http.MethodGet, "/state/node/a", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var n state.Node
			decode(body, &n)
			Expect(n.Summary).To(Equal("node a"))

			resp, _ = do(http.MethodGet, "/state/node/zz", "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("gates a kind", func() {
			resp, body := do(http.MethodGet, "/gate/action", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var out GateResponse
			decode(body, &out)
			Expect(out).To(Equal(GateResponse{Kind: state.KindAction, CanExecute: true}))

			resp, _ = do(http.MethodGet, "/gate/wish", "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("gates every kind", func() {
			_, body := do(http.MethodGet, "/gate", "")
			var out map[state.Kind]bool
			decode(body, &out)
			Expect(out).To(HaveLen(len(state.Kinds)))
		})

		It("renders the context as markdown", func() {
			resp, body := do(http.MethodGet, "/context?history=true", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/markdown"))
			Expect(body).To(ContainSubstring("- [fact] a (open): node a"))
			Expect(body).To(ContainSubstring("### Recent Changes"))
		})

		It("rejects negative context parameters", func() {
			resp, _ := do(http.MethodGet, "/context?budget=-1", "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("filters the log by sequence", func() {
			_, err := session.Apply(context.Background(), []state.Mutation{
				testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("b")),
			})
			Expect(err).NotTo(HaveOccurred())

			s, err := NewServer(Config{DisableMCP: true}, session, nil, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			server = s

			_, body := do(http.MethodGet, "/log?since=1", "")
			var entries []state.Entry
			decode(body, &entries)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Path).To(Equal("/raw/b"))
		})
	})

	Describe("checkpoints", func() {
		It("creates, lists and restores", func() {
			_, err := session.Apply(context.Background(), []state.Mutation{
				testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("a")),
			})
			Expect(err).NotTo(HaveOccurred())

			resp, body := do(http.MethodPost, "/checkpoints", `{"label":"before"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var cp CheckpointResponse
			decode(body, &cp)
			Expect(cp.ID).NotTo(BeEmpty())

			_, err = session.Apply(context.Background(), []state.Mutation{
				testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("b")),
			})
			Expect(err).NotTo(HaveOccurred())

			_, body = do(http.MethodGet, "/checkpoints", "")
			var refs []state.CheckpointRef
			decode(body, &refs)
			Expect(refs).To(HaveLen(1))
			Expect(refs[0].Label).To(Equal("before"))

			resp, _ = do(http.MethodPost, "/checkpoints/"+cp.ID+"/restore", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(session.State().Raw).NotTo(HaveKey("b"))
			Expect(session.Checkpoints()).To(HaveLen(1))
		})

		It("returns 404 for an unknown checkpoint", func() {
			resp, body := do(http.MethodPost, "/checkpoints/missing/restore", "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(body).To(ContainSubstring("checkpoint not found"))
		})
	})

	Describe("heal and rollback", func() {
		BeforeEach(func() {
			dep := testutils.NewTestNode("b")
			dep.DependsOn = []string{"a"}
			_, err := session.Apply(context.Background(), []state.Mutation{
				testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("a")),
				testutils.MustNodeMutation(state.OpAdd, dep),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("plans a rollback without applying it", func() {
			resp, body := do(http.MethodGet, "/rollback/a", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var plan RollbackPlanResponse
			decode(body, &plan)
			Expect(plan.Mutations).To(HaveLen(1))
			Expect(plan.Mutations[0].Path).To(Equal("/raw/b"))

			n, _ := session.Node("b")
			Expect(n.Dirty).To(BeFalse())
		})

		It("applies a rollback", func() {
			resp, _ := do(http.MethodPost, "/rollback/a", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			n, _ := session.Node("b")
			Expect(n.Status).To(Equal(state.StatusBlocked))
			Expect(n.Dirty).To(BeTrue())
		})

		It("returns 404 when rolling back an unknown node", func() {
			resp, _ := do(http.MethodPost, "/rollback/zz", "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("heals with an empty body", func() {
			resp, body := do(http.MethodPost, "/heal", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var st state.State
			decode(body, &st)
			Expect(st.Raw).To(HaveLen(2))
		})
	})

	Describe("storage surface", func() {
		It("saves and loads checkpoints for remote drivers", func() {
			resp, body := do(http.MethodPost, "/storage/checkpoints",
				`{"label":"remote","state":{"raw":{"a":{"id":"a","kind":"fact","status":"open","dirty":false}},"summary":{},"unknowns":[],"assumptions":[],"history":[]}}`)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var cp storage.Checkpoint
			decode(body, &cp)

			resp, body = do(http.MethodGet, "/storage/checkpoints/"+cp.ID, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var snap storage.Snapshot
			decode(body, &snap)
			Expect(snap.State.Raw).To(HaveKey("a"))

			resp, _ = do(http.MethodGet, "/storage/checkpoints/missing", "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("requires the bearer token when configured", func() {
			server = newServer(Config{StorageToken: "s3cret", DisableMCP: true})

			resp, _ := do(http.MethodGet, "/storage/log", "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			req := httptest.NewRequest(http.MethodGet, "/storage/log", nil)
			req.Header.Set("Authorization", "Bearer s3cret")
			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	It("serves prometheus metrics", func() {
		_, err := session.Apply(context.Background(), []state.Mutation{
			testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("a")),
		})
		Expect(err).NotTo(HaveOccurred())

		resp, body := do(http.MethodGet, "/metrics", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("memstate_batches_applied_total 1"))
	})
})
