// Package memory provides in-process store implementations. They back the
// test suites and give callers a zero-dependency starting point; durability
// is the caller's problem.
package memory

import (
	"context"
	"sync"

	es "github.com/ebbtide-io/ebb-events-go"
)

type EventStoreOption func(store *EventStore)

func WithClock(clock es.Clock) EventStoreOption {
	return func(store *EventStore) {
		store.clock = clock
	}
}

func WithIdGenerator(generator es.IDGenerator) EventStoreOption {
	return func(store *EventStore) {
		store.id = generator
	}
}

func NewEventStore(options ...EventStoreOption) *EventStore {
	store := &EventStore{
		streams: make(map[es.EncodedAggregateId][]es.RecordedEvent),
	}

	for _, option := range options {
		option(store)
	}

	if store.clock == nil {
		store.clock = es.SystemClock{}
	}

	if store.id == nil {
		store.id = es.NewIDGenerator(store.clock)
	}

	return store
}

// EventStore keeps per-aggregate streams plus a global log ordered by append.
// All mutation happens under one mutex, which also makes the expected
// sequence check and the write atomic.
type EventStore struct {
	lk      sync.RWMutex
	streams map[es.EncodedAggregateId][]es.RecordedEvent
	log     []es.RecordedEvent
	clock   es.Clock
	id      es.IDGenerator
}

func (s *EventStore) Load(ctx context.Context, id es.AggregateId, after es.Sequence) (es.Aggregate, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	stream := s.streams[id.Encode()]

	var events []es.RecordedEvent
	for _, event := range stream {
		if event.Sequence.After(after) {
			events = append(events, event)
		}
	}

	sequence := es.InitialSequence
	if len(stream) > 0 {
		sequence = stream[len(stream)-1].Sequence
	}

	return es.Aggregate{
		Id:       id,
		Events:   events,
		Sequence: sequence,
	}, nil
}

func (s *EventStore) Append(ctx context.Context, id es.AggregateId, options es.AppendOptions, events ...es.DomainEvent) (es.Sequence, error) {
	if len(events) == 0 {
		return es.InitialSequence, es.Invalid("attempted to append an empty batch")
	}

	timestamp := es.TimestampFromTime(s.clock.Now())

	// marshal the whole batch before taking the lock so a bad payload
	// cannot leave a partial write behind
	payloads := make([]es.Data, len(events))
	types := make([]es.EventType, len(events))
	for i, event := range events {
		data, err := es.MarshalToData(event)
		if err != nil {
			return es.InitialSequence, err
		}

		payloads[i] = data
		types[i] = es.EventTypeOf(event)
	}

	s.lk.Lock()
	defer s.lk.Unlock()

	stream := s.streams[id.Encode()]

	current := es.InitialSequence
	if len(stream) > 0 {
		current = stream[len(stream)-1].Sequence
	}

	if options.Checked() && current != options.ExpectedSequence {
		return es.InitialSequence, es.ErrSequenceConflict
	}

	sequence := current
	for i := range events {
		sequence = sequence.Next()

		recorded := es.RecordedEvent{
			AggregateId: id,
			Sequence:    sequence,
			EventID:     s.id.Create(),
			EventType:   types[i],
			Timestamp:   timestamp,
			Metadata:    options.RecordedEventMetadata,
			Data:        payloads[i],
			Position:    int64(len(s.log) + 1),
		}

		stream = append(stream, recorded)
		s.log = append(s.log, recorded)
	}

	s.streams[id.Encode()] = stream

	return sequence, nil
}

func (s *EventStore) ReadAll(ctx context.Context, after int64, limit int) ([]es.RecordedEvent, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	if after < 0 {
		after = 0
	}

	if after >= int64(len(s.log)) {
		return nil, nil
	}

	pending := s.log[after:]
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}

	events := make([]es.RecordedEvent, len(pending))
	copy(events, pending)

	return events, nil
}
