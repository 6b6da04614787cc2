package engine_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

var _ = Describe("Checkpoints", func() {
	var (
		eng *engine.Engine
		ctx context.Context
	)

	BeforeEach(func() {
		eng = newEngine()
		ctx = context.Background()
	})

	It("saves and loads a state", func() {
		st := mustApply(eng, state.New(), []state.Mutation{
			add("a", `{"kind":"fact"}`),
			add("u", `{"kind":"unknown"}`),
		})

		id, err := eng.Save(ctx, st, "first")
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Checkpoints).To(HaveKey(id))
		Expect(st.Checkpoints[id].Label).To(Equal("first"))

		loaded, err := eng.Load(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Raw).To(Equal(st.Raw))
		Expect(loaded.History).To(Equal(st.History))
		Expect(loaded.Unknowns).To(Equal([]string{"u"}))
		Expect(loaded.Checkpoints).To(BeEmpty())
	})

	It("restores the state as of the save", func() {
		st := mustApply(eng, state.New(), []state.Mutation{add("a", `{"kind":"fact"}`)})
		id, err := eng.Save(ctx, st, "")
		Expect(err).NotTo(HaveOccurred())

		mustApply(eng, st, []state.Mutation{add("b", `{"kind":"fact"}`)})

		loaded, err := eng.Load(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Raw).To(HaveLen(1))

		next := mustApply(eng, loaded, []state.Mutation{add("c", `{"kind":"fact"}`)})
		Expect(next.History).To(HaveLen(2))
	})

	It("returns NotFoundError for unknown checkpoints", func() {
		_, err := eng.Load(ctx, "nope")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("fails without a storage driver", func() {
		bare := engine.New(engine.Config{})
		_, err := bare.Save(ctx, state.New(), "")
		Expect(errors.Is(err, engine.ErrNoStorage)).To(BeTrue())

		_, err = bare.Load(ctx, "any")
		Expect(errors.Is(err, engine.ErrNoStorage)).To(BeTrue())
	})
})
