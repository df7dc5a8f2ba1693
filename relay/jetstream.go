package relay

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	es "github.com/ebbtide-io/ebb-events-go"
)

const subjectPrefix = "events."

// JetStreamSink republishes recorded events onto a NATS JetStream stream,
// giving off-process consumers a broker-backed delivery channel. The event id
// doubles as the message id so the broker deduplicates relay redeliveries.
type JetStreamSink struct {
	name   string
	stream nats.JetStreamContext
}

func NewJetStreamSink(name string, connection *nats.Conn) (*JetStreamSink, error) {
	stream, err := connection.JetStream()
	if err != nil {
		return nil, err
	}

	_, err = stream.AddStream(&nats.StreamConfig{
		Name:        name,
		Description: "recorded event feed for " + name,
		Subjects:    []string{subjectPrefix + ">"},
	})
	if err != nil {
		return nil, err
	}

	return &JetStreamSink{
		name:   name,
		stream: stream,
	}, nil
}

func (s *JetStreamSink) Name() string {
	return "jetstream-sink:" + s.name
}

func (s *JetStreamSink) Deliver(ctx context.Context, event es.RecordedEvent) error {
	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = s.stream.Publish(
		subject(event.AggregateId),
		bytes,
		nats.Context(ctx),
		nats.MsgId(event.EventID.String()),
	)

	return err
}

func subject(aggregateId es.AggregateId) string {
	return subjectPrefix + aggregateId.Encode().String()
}
