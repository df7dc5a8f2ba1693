package es

import (
	"errors"
	"strings"
)

type EventID string

func (id EventID) String() string {
	return string(id)
}

type EventType string

func (et EventType) String() string {
	return string(et)
}

type CorrelationID string

func (id CorrelationID) String() string {
	return string(id)
}

type Data struct {
	Encoding string `json:"encoding" dynamodbav:"encoding"`
	Data     []byte `json:"data" dynamodbav:"data"`
}

type AggregateId struct {
	Type string `json:"type" dynamodbav:"type"`
	Key  string `json:"key" dynamodbav:"key"`
}

type EncodedAggregateId string

func (id AggregateId) Encode() EncodedAggregateId {
	return EncodedAggregateId(strings.Join([]string{id.Type, id.Key}, "."))
}

func (id EncodedAggregateId) String() string {
	return string(id)
}

func (id EncodedAggregateId) Decode() (*AggregateId, error) {
	seperated := strings.Split(string(id), ".")
	if len(seperated) < 2 {
		return nil, errors.New("expected . delimiter in aggregate id")
	}

	return &AggregateId{
		Type: seperated[0],
		Key:  strings.Join(seperated[1:], "."),
	}, nil
}

type DomainEvent any

func EventTypeOf(event DomainEvent) EventType {
	return EventType(NameOf(event))
}

type RecordedEventMetadata struct {
	CausationId   EventID       `json:"causationId,omitempty" dynamodbav:"causationId,omitempty"`
	CorrelationId CorrelationID `json:"correlationId,omitempty" dynamodbav:"correlationId,omitempty"`
}

// RecordedEvent is the durable form of a domain event. Sequence is the
// aggregate-local position, starting at 1 for the first event. Position is the
// store-wide feed position assigned at append time; stores that cannot provide
// a global feed leave it at zero.
type RecordedEvent struct {
	AggregateId AggregateId           `json:"aggregate" dynamodbav:"aggregate"`
	Sequence    Sequence              `json:"sequence" dynamodbav:"sequence"`
	EventID     EventID               `json:"id" dynamodbav:"id"`
	EventType   EventType             `json:"type" dynamodbav:"type"`
	Timestamp   Timestamp             `json:"timestamp" dynamodbav:"timestamp"`
	Metadata    RecordedEventMetadata `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	Data        Data                  `json:"data" dynamodbav:"data"`
	Position    int64                 `json:"position,omitempty" dynamodbav:"-"`
}

// Aggregate is the recorded history of a single consistency boundary, as
// returned by EventStore.Load. Sequence reflects the last event in the store,
// not the last event in Events (which may start past a snapshot).
type Aggregate struct {
	Id       AggregateId     `json:"id"`
	Events   []RecordedEvent `json:"events,omitempty"`
	Sequence Sequence        `json:"sequence"`
}
