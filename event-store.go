package es

import (
	"context"
)

// EventStore is the single source of truth. Append is atomic across the
// batch: either every event is durably written with contiguous sequence
// numbers, or none are. Load returns events in strictly increasing sequence
// order, starting after the given sequence.
type EventStore interface {
	Load(ctx context.Context, id AggregateId, after Sequence) (Aggregate, error)
	Append(ctx context.Context, id AggregateId, options AppendOptions, events ...DomainEvent) (Sequence, error)
}

// EventFeed exposes the store's total order for tailing. ReadAll returns up
// to limit events with Position greater than after, ordered by Position.
// Within one aggregate, Position order agrees with Sequence order.
type EventFeed interface {
	ReadAll(ctx context.Context, after int64, limit int) ([]RecordedEvent, error)
}

type AppendOptions struct {
	RecordedEventMetadata
	ExpectedSequence Sequence
	checkSequence    bool
}

// Checked reports whether the append carries an expected-sequence condition.
// An unchecked append skips the optimistic concurrency comparison; command
// execution always appends checked.
func (o AppendOptions) Checked() bool {
	return o.checkSequence
}

type AppendOption func(options *AppendOptions)

func Options(options ...AppendOption) AppendOptions {
	applied := &AppendOptions{}
	for _, option := range options {
		option(applied)
	}

	return *applied
}

func WithExpectedSequence(expected Sequence) AppendOption {
	return func(options *AppendOptions) {
		options.ExpectedSequence = expected
		options.checkSequence = true
	}
}

func WithCorrelationId(correlationId CorrelationID) AppendOption {
	return func(options *AppendOptions) {
		options.RecordedEventMetadata.CorrelationId = correlationId
	}
}

func WithCausationId(correlationId CorrelationID, causationId EventID) AppendOption {
	return func(options *AppendOptions) {
		options.RecordedEventMetadata.CausationId = causationId
		options.RecordedEventMetadata.CorrelationId = correlationId
	}
}
