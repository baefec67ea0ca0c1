package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/eventstream/kafka"
)

type fakeWriter struct {
	msgs     []kafkago.Message
	err      error
	closed   bool
	deadline bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		fw  *fakeWriter
		pub *kafka.Publisher
	)

	BeforeEach(func() {
		fw = &fakeWriter{}
		pub = kafka.NewPublisherWithWriter(fw, kafka.Config{Topic: "splice.injections"})
	})

	newEvent := func() *eventstream.InjectionEvent {
		return eventstream.NewInjectionEvent(
			time.Unix(1735689600, 0),
			eventstream.EventSource{Upstream: "http://app:3000", Location: "head", Policy: "first"},
			eventstream.RequestMeta{Method: "GET", Path: "/", Host: "shop.example", HTTPStatus: 200},
			eventstream.StreamMeta{BytesIn: 10, BytesOut: 40, Injections: 1},
		)
	}

	It("writes the event as a JSON message keyed by host", func() {
		event := newEvent()
		Expect(pub.PublishInjection(context.Background(), event)).To(Succeed())

		Expect(fw.msgs).To(HaveLen(1))
		msg := fw.msgs[0]
		Expect(string(msg.Key)).To(Equal("shop.example"))
		Expect(msg.Time).To(Equal(event.EmittedAt))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeDocumentInjected)}))
		Expect(fw.deadline).To(BeTrue())

		var decoded eventstream.InjectionEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Stream.Injections).To(Equal(1))
	})

	It("rejects nil events", func() {
		Expect(pub.PublishInjection(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(fw.msgs).To(BeEmpty())
	})

	It("wraps writer errors with the event ID", func() {
		fw.err = errors.New("leader not available")
		event := newEvent()

		err := pub.PublishInjection(context.Background(), event)
		Expect(err).To(MatchError(fw.err))
		Expect(err.Error()).To(ContainSubstring(event.EventID))
	})

	It("closes the underlying writer", func() {
		Expect(pub.Close()).To(Succeed())
		Expect(fw.closed).To(BeTrue())
	})

	Describe("NewPublisher", func() {
		It("requires brokers", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: " , ", Topic: "t"})
			Expect(err).To(MatchError(ContainSubstring("broker")))
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: "localhost:9092"})
			Expect(err).To(MatchError(ContainSubstring("topic")))
		})

		It("builds a publisher without dialing", func() {
			p, err := kafka.NewPublisher(kafka.Config{Brokers: "localhost:9092", Topic: "t"})
			Expect(err).NotTo(HaveOccurred())
			Expect(p).NotTo(BeNil())
		})
	})

	It("splits and trims broker lists", func() {
		Expect(kafka.SplitBrokers(" a:1, b:2 ,,")).To(Equal([]string{"a:1", "b:2"}))
	})
})
