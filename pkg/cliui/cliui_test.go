package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("Step", func() {
		It("returns the function's error and marks the line", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			err := cliui.Step(&buf, "opening storage", func() error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("opening storage"))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})

		It("marks success", func() {
			var buf bytes.Buffer
			Expect(cliui.Step(&buf, "ok", func() error { return nil })).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		})
	})

	Describe("GateLine", func() {
		It("pairs the mark with the kind", func() {
			Expect(cliui.GateLine("action", true)).To(HavePrefix(cliui.SuccessMark))
			Expect(cliui.GateLine("action", false)).To(HavePrefix(cliui.FailMark))
			Expect(cliui.GateLine("action", false)).To(ContainSubstring("action"))
		})
	})

	Describe("FormatDuration", func() {
		It("uses milliseconds below a second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("uses seconds above", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("WriteMarkdown", func() {
		It("writes plain text to non-terminals", func() {
			var buf bytes.Buffer
			Expect(cliui.WriteMarkdown(&buf, "### Facts\n- [fact] a (valid): x\n")).To(Succeed())
			Expect(buf.String()).To(Equal("### Facts\n- [fact] a (valid): x\n"))
			Expect(cliui.IsTerminal(&buf)).To(BeFalse())
		})
	})
})
