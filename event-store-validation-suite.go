package es

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// NewEventStoreValidationSuite exercises the EventStore contract against an
// arbitrary implementation. Store adapters run it from their own tests.
func NewEventStoreValidationSuite(ctx context.Context, store EventStore) *EventStoreValidationSuite {
	return &EventStoreValidationSuite{
		store: store,
		ctx:   ctx,
		faker: faker.New(),
	}
}

type EventStoreValidationSuite struct {
	store EventStore
	ctx   context.Context
	faker faker.Faker
}

type StoreValidationEvent struct {
	TestStringValue string `json:"test_string_value"`
	TestIntValue    int    `json:"test_int_value"`
}

type unserializableEvent struct {
	Blocker chan int `json:"blocker"`
}

func (s *EventStoreValidationSuite) Run(t *testing.T) {
	t.Run("loads an empty aggregate", s.LoadInitial)
	t.Run("appends a single event", s.AppendsSingleEvent)
	t.Run("appends a batch with contiguous sequences", s.AppendsBatch)
	t.Run("loads from an offset", s.LoadsFromOffset)
	t.Run("rejects a stale initial sequence", s.ConflictOnInitialSequence)
	t.Run("rejects a stale subsequent sequence", s.ConflictOnSubsequentSequence)
	t.Run("writes nothing when a batch fails", s.AtomicAppend)
	t.Run("records causation and correlation", s.Causation)
}

func (s *EventStoreValidationSuite) MakeTestAggregateId() AggregateId {
	return AggregateId{
		Type: "go-test",
		Key:  ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String(),
	}
}

func (s *EventStoreValidationSuite) MakeTestEvent() StoreValidationEvent {
	return StoreValidationEvent{
		TestStringValue: s.faker.Lorem().Sentence(10),
		TestIntValue:    s.faker.Int(),
	}
}

func (s *EventStoreValidationSuite) MakeTestEvents(count int) []DomainEvent {
	events := make([]DomainEvent, count)
	for i := 0; i < count; i++ {
		events[i] = s.MakeTestEvent()
	}

	return events
}

func (s *EventStoreValidationSuite) LoadInitial(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	aggregate, err := s.store.Load(s.ctx, aggregateId, InitialSequence)
	if !assert.Nil(t, err) {
		return
	}

	assert.Empty(t, aggregate.Events)
	assert.Equal(t, InitialSequence, aggregate.Sequence)
	assert.EqualValues(t, aggregateId, aggregate.Id)
}

func (s *EventStoreValidationSuite) AppendsSingleEvent(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	sequence, err := s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(InitialSequence)), s.MakeTestEvent())
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, Sequence(1), sequence)

	aggregate, err := s.store.Load(s.ctx, aggregateId, InitialSequence)
	if !assert.Nil(t, err) {
		return
	}

	if assert.Len(t, aggregate.Events, 1) {
		assert.Equal(t, Sequence(1), aggregate.Events[0].Sequence)
		assert.NotEmpty(t, aggregate.Events[0].EventID)
		assert.NotEmpty(t, aggregate.Events[0].Timestamp)
	}
	assert.Equal(t, Sequence(1), aggregate.Sequence)
}

func (s *EventStoreValidationSuite) AppendsBatch(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	sequence, err := s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(InitialSequence)), s.MakeTestEvents(17)...)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, Sequence(17), sequence)

	aggregate, err := s.store.Load(s.ctx, aggregateId, InitialSequence)
	if !assert.Nil(t, err) {
		return
	}

	if assert.Len(t, aggregate.Events, 17) {
		for i, event := range aggregate.Events {
			assert.Equal(t, Sequence(i+1), event.Sequence)
		}
	}
}

func (s *EventStoreValidationSuite) LoadsFromOffset(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	_, err := s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(InitialSequence)), s.MakeTestEvents(9)...)
	if !assert.Nil(t, err) {
		return
	}

	aggregate, err := s.store.Load(s.ctx, aggregateId, Sequence(6))
	if !assert.Nil(t, err) {
		return
	}

	if assert.Len(t, aggregate.Events, 3) {
		assert.Equal(t, Sequence(7), aggregate.Events[0].Sequence)
		assert.Equal(t, Sequence(9), aggregate.Events[2].Sequence)
	}
	assert.Equal(t, Sequence(9), aggregate.Sequence)
}

func (s *EventStoreValidationSuite) ConflictOnInitialSequence(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	_, err := s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(InitialSequence)), s.MakeTestEvent())
	if !assert.Nil(t, err) {
		return
	}

	_, err = s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(InitialSequence)), s.MakeTestEvent())
	assert.ErrorIs(t, err, ErrSequenceConflict)

	aggregate, err := s.store.Load(s.ctx, aggregateId, InitialSequence)
	if assert.Nil(t, err) {
		assert.Len(t, aggregate.Events, 1)
	}
}

func (s *EventStoreValidationSuite) ConflictOnSubsequentSequence(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	_, err := s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(InitialSequence)), s.MakeTestEvents(3)...)
	if !assert.Nil(t, err) {
		return
	}

	_, err = s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(Sequence(2))), s.MakeTestEvent())
	assert.ErrorIs(t, err, ErrSequenceConflict)

	sequence, err := s.store.Append(s.ctx, aggregateId, Options(WithExpectedSequence(Sequence(3))), s.MakeTestEvent())
	if assert.Nil(t, err) {
		assert.Equal(t, Sequence(4), sequence)
	}
}

func (s *EventStoreValidationSuite) AtomicAppend(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	_, err := s.store.Append(
		s.ctx, aggregateId, Options(WithExpectedSequence(InitialSequence)),
		s.MakeTestEvent(),
		unserializableEvent{Blocker: make(chan int)},
		s.MakeTestEvent(),
	)
	assert.NotNil(t, err)

	aggregate, err := s.store.Load(s.ctx, aggregateId, InitialSequence)
	if assert.Nil(t, err) {
		assert.Empty(t, aggregate.Events)
		assert.Equal(t, InitialSequence, aggregate.Sequence)
	}
}

func (s *EventStoreValidationSuite) Causation(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	correlation := CorrelationID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
	cause := EventID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())

	_, err := s.store.Append(
		s.ctx, aggregateId,
		Options(WithExpectedSequence(InitialSequence), WithCausationId(correlation, cause)),
		s.MakeTestEvent(),
	)
	if !assert.Nil(t, err) {
		return
	}

	aggregate, err := s.store.Load(s.ctx, aggregateId, InitialSequence)
	if !assert.Nil(t, err) {
		return
	}

	if assert.Len(t, aggregate.Events, 1) {
		assert.Equal(t, correlation, aggregate.Events[0].Metadata.CorrelationId)
		assert.Equal(t, cause, aggregate.Events[0].Metadata.CausationId)
	}
}
