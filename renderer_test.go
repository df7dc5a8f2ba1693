package es

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type tally struct {
	Total   int      `json:"total"`
	Applied []string `json:"applied"`
}

type tallyOpened struct {
	Initial int `json:"initial"`
}

type tallyAdjusted struct {
	Amount int    `json:"amount"`
	Label  string `json:"label"`
}

func tallyRenderer() *Renderer[tally] {
	var opened InitializerFunction[tally, tallyOpened] = func(evt *tallyOpened) (*tally, error) {
		return &tally{Total: evt.Initial}, nil
	}

	var adjusted ReducerFunction[tally, tallyAdjusted] = func(state *tally, evt *tallyAdjusted) error {
		state.Total += evt.Amount
		state.Applied = append(state.Applied, evt.Label)
		return nil
	}

	var openedReducer ReducerFunction[tally, tallyOpened] = func(state *tally, evt *tallyOpened) error {
		state.Total = evt.Initial
		return nil
	}

	return &Renderer[tally]{
		Initializers: Initializers[tally]{
			EventTypeOf(tallyOpened{}): opened,
		},
		Reducers: Reducers[tally]{
			EventTypeOf(tallyOpened{}):   openedReducer,
			EventTypeOf(tallyAdjusted{}): adjusted,
		},
	}
}

func recordedTestEvent(t *testing.T, id AggregateId, sequence Sequence, event DomainEvent) RecordedEvent {
	t.Helper()

	data, err := MarshalToData(event)
	if err != nil {
		t.Fatalf("failed to marshal test event: %v", err)
	}

	return RecordedEvent{
		AggregateId: id,
		Sequence:    sequence,
		EventID:     EventID(sequence.String()),
		EventType:   EventTypeOf(event),
		Data:        data,
	}
}

func tallyHistory(t *testing.T) Aggregate {
	id := AggregateId{Type: "tally", Key: "render-test"}

	return Aggregate{
		Id:       id,
		Sequence: Sequence(3),
		Events: []RecordedEvent{
			recordedTestEvent(t, id, Sequence(1), tallyOpened{Initial: 10}),
			recordedTestEvent(t, id, Sequence(2), tallyAdjusted{Amount: 5, Label: "first"}),
			recordedTestEvent(t, id, Sequence(3), tallyAdjusted{Amount: -3, Label: "second"}),
		},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	renderer := tallyRenderer()
	history := tallyHistory(t)

	first, err := renderer.Render(context.Background(), history)
	assert.Nil(t, err)

	second, err := renderer.Render(context.Background(), history)
	assert.Nil(t, err)

	assert.Equal(t, first.State, second.State)
	assert.Equal(t, 12, first.State.Total)
	assert.Equal(t, []string{"first", "second"}, first.State.Applied)
	assert.Equal(t, Sequence(3), first.Sequence)
}

func TestRenderFromSeedSkipsReplayedHistory(t *testing.T) {
	renderer := tallyRenderer()
	history := tallyHistory(t)

	full, err := renderer.Render(context.Background(), history)
	assert.Nil(t, err)

	seeded := Aggregate{
		Id:       history.Id,
		Sequence: history.Sequence,
		Events:   history.Events[2:],
	}
	seed := &tally{Total: 15, Applied: []string{"first"}}

	partial, err := renderer.RenderFrom(context.Background(), seeded, seed)
	assert.Nil(t, err)

	assert.Equal(t, full.State, partial.State)
}

func TestRenderRejectsUnknownEventTypes(t *testing.T) {
	renderer := tallyRenderer()
	id := AggregateId{Type: "tally", Key: "unknown-event"}

	type unregistered struct {
		Value int `json:"value"`
	}

	history := Aggregate{
		Id:       id,
		Sequence: Sequence(2),
		Events: []RecordedEvent{
			recordedTestEvent(t, id, Sequence(1), tallyOpened{Initial: 1}),
			recordedTestEvent(t, id, Sequence(2), unregistered{Value: 9}),
		},
	}

	_, err := renderer.Render(context.Background(), history)
	assert.NotNil(t, err)

	var unknown UnknownEventTypeError
	assert.ErrorAs(t, err, &unknown)
}

func TestRenderReportsUndecodableEvents(t *testing.T) {
	renderer := tallyRenderer()
	id := AggregateId{Type: "tally", Key: "bad-payload"}

	corrupt := recordedTestEvent(t, id, Sequence(2), tallyAdjusted{Amount: 1})
	corrupt.Data.Data = []byte(`{"amount": "not-a-number"}`)

	history := Aggregate{
		Id:       id,
		Sequence: Sequence(2),
		Events: []RecordedEvent{
			recordedTestEvent(t, id, Sequence(1), tallyOpened{Initial: 1}),
			corrupt,
		},
	}

	_, err := renderer.Render(context.Background(), history)
	assert.NotNil(t, err)

	var deserialization DeserializationError
	assert.ErrorAs(t, err, &deserialization)
}

func TestRenderEmptyHistoryIsUninitialized(t *testing.T) {
	renderer := tallyRenderer()

	entity, err := renderer.Render(context.Background(), Aggregate{
		Id: AggregateId{Type: "tally", Key: "empty"},
	})
	assert.Nil(t, err)
	assert.False(t, entity.Initialized())
	assert.NotNil(t, entity.State)
}
