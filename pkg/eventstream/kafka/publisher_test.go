package kafka_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/eventstream"
	"github.com/papercomputeco/tracenotes/pkg/eventstream/kafka"
	testutils "github.com/papercomputeco/tracenotes/pkg/utils/test"
)

type recordingWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	It("requires brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("builds a writer from config without connecting", func() {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("writes one message keyed by revision", func() {
		w := &recordingWriter{}
		p := kafka.NewPublisherWithWriter(w, "traces")

		event := eventstream.NewTracesPersistedEvent(
			eventstream.EventSource{Ref: "refs/notes/agent-trace"}, "abc123", eventstream.OriginRecord,
			[]*agenttrace.AgentTrace{testutils.NewTrace(testutils.TraceID1, "2026-01-01T10:00:00Z")},
		)
		Expect(p.PublishTraces(context.Background(), event)).To(Succeed())

		Expect(w.messages).To(HaveLen(1))
		Expect(string(w.messages[0].Key)).To(Equal("abc123"))
		Expect(w.messages[0].Headers).To(ContainElement(kafkago.Header{
			Key: "event_type", Value: []byte(eventstream.EventTypeTracesPersisted),
		}))

		var decoded eventstream.TracesPersistedEvent
		Expect(json.Unmarshal(w.messages[0].Value, &decoded)).To(Succeed())
		Expect(decoded.TraceIDs).To(Equal([]string{testutils.TraceID1}))

		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	It("rejects nil events and wraps write failures", func() {
		w := &recordingWriter{err: errors.New("broker down")}
		p := kafka.NewPublisherWithWriter(w, "traces")

		Expect(p.PublishTraces(context.Background(), nil)).To(MatchError(eventstream.ErrNilTracesEvent))
		Expect(p.PublishTraces(context.Background(), &eventstream.TracesPersistedEvent{})).
			To(MatchError(ContainSubstring("broker down")))
	})
})
