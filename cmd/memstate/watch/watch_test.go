package watchcmder_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	watchcmder "github.com/papercomputeco/memstate/cmd/memstate/watch"
	"github.com/papercomputeco/memstate/pkg/state"
	testutils "github.com/papercomputeco/memstate/pkg/utils/test"
)

func appendEntries(path string, entries []state.Entry) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		Expect(enc.Encode(e)).To(Succeed())
	}
}

var _ = Describe("Watch", func() {
	var (
		path    string
		out     *gbytes.Buffer
		cancel  context.CancelFunc
		done    chan error
		history []state.Entry
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "logs", "log.jsonl")
		out = gbytes.NewBuffer()

		st := testutils.ApplyBatches(
			[]state.Mutation{testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("a"))},
			[]state.Mutation{testutils.MustNodeMutation(state.OpAdd, testutils.UnknownNode("u"))},
		)
		history = st.History

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() {
			done <- watchcmder.NewWatcher(path, out, nil).Watch(ctx)
		}()
		Eventually(out).Should(gbytes.Say("Watching"))
	})

	AfterEach(func() {
		cancel()
		Eventually(done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))
	})

	It("reports batches as they are appended", func() {
		appendEntries(path, history[:1])
		Eventually(out, 5*time.Second).Should(gbytes.Say(`batch 1`))
		Eventually(out, 5*time.Second).Should(gbytes.Say(`✓ fact`))

		appendEntries(path, history[1:])
		Eventually(out, 5*time.Second).Should(gbytes.Say(`batch 2 .*1 mutations.* u`))
		Eventually(out, 5*time.Second).Should(gbytes.Say(`✗ fact`))
	})

	It("replays from the start when the log is rewritten", func() {
		appendEntries(path, history)
		Eventually(out, 5*time.Second).Should(gbytes.Say(`batch 2`))

		Expect(os.Truncate(path, 0)).To(Succeed())
		appendEntries(path, history[:1])
		Eventually(out, 5*time.Second).Should(gbytes.Say(`log rewritten`))
		Eventually(out, 5*time.Second).Should(gbytes.Say(`batch 1`))
	})

	It("replays from the start when the log records a rewind", func() {
		appendEntries(path, history)
		Eventually(out, 5*time.Second).Should(gbytes.Say(`batch 2`))

		branch := testutils.ApplyBatches(
			[]state.Mutation{testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("a"))},
			[]state.Mutation{testutils.MustNodeMutation(state.OpAdd, testutils.NewTestNode("v"))},
		)
		appendEntries(path, []state.Entry{
			state.NewRewindEntry(1, history[0].Batch, time.Now().UTC(), "restore checkpoint cp"),
			branch.History[1],
		})
		Eventually(out, 5*time.Second).Should(gbytes.Say(`log rewritten`))
		Eventually(out, 5*time.Second).Should(gbytes.Say(`batch 2 .*1 mutations.* v`))
	})
})
