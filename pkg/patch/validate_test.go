package patch_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/patch"
	"github.com/papercomputeco/memstate/pkg/state"
)

func rawMutation(op state.Op, path, value string) state.Mutation {
	return state.Mutation{Op: op, Path: path, Value: json.RawMessage(value)}
}

func expectField(err error, field string) {
	GinkgoHelper()
	var ve *patch.ValidationError
	Expect(errors.As(err, &ve)).To(BeTrue(), "expected a ValidationError, got %v", err)
	Expect(ve.Field).To(Equal(field))
}

var _ = Describe("Parse", func() {
	Context("with a node mutation", func() {
		It("returns a NodeReplace with defaults applied", func() {
			p, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","dependsOn":["c","b","c"]}`))
			Expect(err).NotTo(HaveOccurred())

			nr, ok := p.(patch.NodeReplace)
			Expect(ok).To(BeTrue())
			Expect(nr.ID).To(Equal("a"))
			Expect(nr.Node.ID).To(Equal("a"))
			Expect(nr.Node.Status).To(Equal(state.StatusOpen))
			Expect(nr.Node.DependsOn).To(Equal([]string{"b", "c"}))
			Expect(nr.References()).To(ConsistOf("b", "c"))
		})

		It("rejects an id that does not match the path", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"id":"b","kind":"fact"}`))
			expectField(err, "id")
		})

		It("rejects unknown enum values", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"goal"}`))
			expectField(err, "kind")

			_, err = patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","status":"done"}`))
			expectField(err, "status")

			_, err = patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"assumption","assumptionStatus":"maybe"}`))
			expectField(err, "assumptionStatus")
		})

		It("rejects an assumption status on other kinds", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","assumptionStatus":"valid"}`))
			expectField(err, "assumptionStatus")
		})

		It("rejects scalar detail payloads", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","detail":"text"}`))
			expectField(err, "detail")

			_, err = patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","detail":42}`))
			expectField(err, "detail")
		})

		It("accepts structured and null detail payloads", func() {
			p, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","detail":{"source":"doc"}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(p.(patch.NodeReplace).Node.Detail)).To(Equal(`{"source":"doc"}`))

			p, err = patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","detail":null}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.(patch.NodeReplace).Node.Detail).To(BeNil())
		})

		It("rejects fields outside the schema", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","priority":1}`))
			expectField(err, "priority")
		})

		It("rejects engine managed timestamps", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","updatedAt":"2026-01-01T00:00:00Z"}`))
			expectField(err, "updatedAt")
		})

		It("rejects wrongly typed fields", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact","dependsOn":"b"}`))
			expectField(err, "dependsOn")
		})

		It("rejects non-object values", func() {
			_, err := patch.Parse(rawMutation(state.OpAdd, "/raw/a", `["fact"]`))
			expectField(err, "value")

			_, err = patch.Parse(state.Mutation{Op: state.OpAdd, Path: "/raw/a"})
			expectField(err, "value")
		})
	})

	Context("with a summary mutation", func() {
		It("returns a SummaryReplace", func() {
			p, err := patch.Parse(rawMutation(state.OpReplace, "/summary/a", `"short"`))
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(patch.SummaryReplace{
				Header:  patch.Header{Op: state.OpReplace, ID: "a"},
				Summary: "short",
			}))
		})

		It("rejects non-string values", func() {
			_, err := patch.Parse(rawMutation(state.OpReplace, "/summary/a", `{"text":"x"}`))
			expectField(err, "value")
		})

		DescribeTable("rejects a missing string",
			func(value string) {
				_, err := patch.Parse(rawMutation(state.OpReplace, "/summary/a", value))
				expectField(err, "value")
			},
			Entry("null", `null`),
			Entry("padded null", " null \n"),
		)

		It("accepts an empty string", func() {
			p, err := patch.Parse(rawMutation(state.OpReplace, "/summary/a", `""`))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.(patch.SummaryReplace).Summary).To(BeEmpty())
		})
	})

	DescribeTable("rejects malformed operations and paths",
		func(op state.Op, path, field string) {
			_, err := patch.Parse(rawMutation(op, path, `{"kind":"fact"}`))
			expectField(err, field)
		},
		Entry("remove is not supported", state.Op("remove"), "/raw/a", "op"),
		Entry("rewind records are not mutations", state.OpRewind, "/raw/a", "op"),
		Entry("unknown namespace", state.OpAdd, "/nodes/a", "path"),
		Entry("missing id", state.OpAdd, "/raw/", "path"),
		Entry("nested path", state.OpAdd, "/raw/a/b", "path"),
		Entry("no leading slash", state.OpAdd, "raw/a", "path"),
	)
})

var _ = Describe("CheckReferences", func() {
	It("rejects dangling references", func() {
		p, err := patch.Parse(rawMutation(state.OpAdd, "/raw/x", `{"kind":"action","dependsOn":["y"]}`))
		Expect(err).NotTo(HaveOccurred())

		err = patch.CheckReferences(p.(patch.NodeReplace), "/raw/x", func(string) bool { return false })
		expectField(err, "value")
		Expect(err.Error()).To(ContainSubstring(`"y"`))
	})

	It("tolerates legacy detail references", func() {
		p, err := patch.Parse(rawMutation(state.OpAdd, "/raw/x", `{"kind":"fact","detail":{"contradicts":"gone"}}`))
		Expect(err).NotTo(HaveOccurred())

		Expect(patch.CheckReferences(p.(patch.NodeReplace), "/raw/x", func(string) bool { return false })).To(Succeed())
	})
})

var _ = Describe("ParseBatch", func() {
	It("decodes a wire batch", func() {
		batch, err := patch.ParseBatch([]byte(`[{"op":"add","path":"/raw/a","value":{"kind":"fact"},"reason":"seen"}]`))
		Expect(err).NotTo(HaveOccurred())
		Expect(batch).To(HaveLen(1))
		Expect(batch[0].Reason).To(Equal("seen"))
	})

	It("rejects unknown mutation keys", func() {
		_, err := patch.ParseBatch([]byte(`[{"op":"add","path":"/raw/a","value":{"kind":"fact"},"at":"now"}]`))
		expectField(err, "batch")
	})

	It("reports the index of the offending mutation", func() {
		_, err := patch.ParseBatch([]byte(`[{"op":"add","path":"/raw/a","value":{"kind":"fact"}},{"op":"add","path":"/raw/b","value":{"kind":"nope"}}]`))
		var ve *patch.ValidationError
		Expect(errors.As(err, &ve)).To(BeTrue())
		Expect(ve.Index).To(Equal(1))
		Expect(err.Error()).To(ContainSubstring("invalid mutation 1 (/raw/b)"))
	})

	It("round trips through EncodeBatch", func() {
		in := []state.Mutation{rawMutation(state.OpAdd, "/raw/a", `{"kind":"fact"}`)}
		data, err := patch.EncodeBatch(in)
		Expect(err).NotTo(HaveOccurred())

		out, err := patch.ParseBatch(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Path).To(Equal("/raw/a"))
	})
})
