package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/memstate/pkg/eventstream"
	"github.com/papercomputeco/memstate/pkg/eventstream/kafka"
	testutils "github.com/papercomputeco/memstate/pkg/utils/test"
)

type recordingWriter struct {
	msgs     []kafkago.Message
	err      error
	deadline bool
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *recordingWriter
		p *kafka.Publisher
	)

	BeforeEach(func() {
		w = &recordingWriter{}
		p = kafka.NewPublisherWithWriter(w, time.Second, nil)
	})

	It("requires brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{}, nil)
		Expect(err).To(MatchError(ContainSubstring("brokers are required")))
	})

	It("creates a writer-backed publisher", func() {
		pub, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.Close()).To(Succeed())
	})

	It("rejects nil events", func() {
		Expect(p.PublishBatch(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("writes the event keyed by session", func() {
		event := eventstream.NewBatchAppliedEvent("s1", testutils.NewTestEntries(), []string{"a"}, nil)
		Expect(p.PublishBatch(context.Background(), event)).To(Succeed())

		Expect(w.msgs).To(HaveLen(1))
		Expect(w.deadline).To(BeTrue())
		msg := w.msgs[0]
		Expect(string(msg.Key)).To(Equal("s1"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeBatchApplied)}))

		var got eventstream.BatchAppliedEvent
		Expect(json.Unmarshal(msg.Value, &got)).To(Succeed())
		Expect(got.EventID).To(Equal(event.EventID))
		Expect(got.Entries).To(HaveLen(2))
	})

	It("wraps write errors", func() {
		w.err = errors.New("broker unavailable")
		event := eventstream.NewBatchAppliedEvent("s1", testutils.NewTestEntries(), nil, nil)
		Expect(p.PublishBatch(context.Background(), event)).To(MatchError(ContainSubstring("publishing batch 1: broker unavailable")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
