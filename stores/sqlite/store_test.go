package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/ebbtide-io/ebb-events-go"
	"github.com/ebbtide-io/ebb-events-go/projection"
)

type sqliteTestEvent struct {
	Value int `json:"value"`
}

func openTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	store, db, err := Open(context.Background(), ":memory:")
	require.Nil(t, err)

	return store, func() { _ = db.Close() }
}

func TestSqliteEventStoreContract(t *testing.T) {
	store, teardown := openTestStore(t)
	defer teardown()

	es.NewEventStoreValidationSuite(context.Background(), store).Run(t)
}

func TestSqliteReadAllOrdersByPosition(t *testing.T) {
	ctx := context.Background()
	store, teardown := openTestStore(t)
	defer teardown()

	first := es.AggregateId{Type: "position-test", Key: "first"}
	second := es.AggregateId{Type: "position-test", Key: "second"}

	_, err := store.Append(ctx, first, es.Options(), sqliteTestEvent{Value: 1}, sqliteTestEvent{Value: 2})
	assert.Nil(t, err)

	_, err = store.Append(ctx, second, es.Options(), sqliteTestEvent{Value: 3})
	assert.Nil(t, err)

	_, err = store.Append(ctx, first, es.Options(), sqliteTestEvent{Value: 4})
	assert.Nil(t, err)

	events, err := store.ReadAll(ctx, 0, 10)
	assert.Nil(t, err)

	if assert.Len(t, events, 4) {
		for i := 1; i < len(events); i++ {
			assert.Greater(t, events[i].Position, events[i-1].Position)
		}

		assert.Equal(t, first, events[0].AggregateId)
		assert.Equal(t, second, events[2].AggregateId)
	}

	resumed, err := store.ReadAll(ctx, events[1].Position, 10)
	assert.Nil(t, err)
	if assert.Len(t, resumed, 2) {
		assert.Equal(t, events[2].EventID, resumed[0].EventID)
	}
}

func TestSqliteLoadIsConsistentUnderConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store, teardown := openTestStore(t)
	defer teardown()

	id := es.AggregateId{Type: "load-test", Key: "concurrent"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := store.Append(ctx, id, es.Options(), sqliteTestEvent{Value: i}); err != nil {
				t.Errorf("append failed: %v", err)
				return
			}
		}
	}()

	// the head must never run ahead of the events returned alongside it
	for i := 0; i < 200; i++ {
		aggregate, err := store.Load(ctx, id, es.InitialSequence)
		require.Nil(t, err)

		if len(aggregate.Events) == 0 {
			assert.Equal(t, es.InitialSequence, aggregate.Sequence)
			continue
		}

		assert.Equal(t, aggregate.Events[len(aggregate.Events)-1].Sequence, aggregate.Sequence)
	}

	<-done

	aggregate, err := store.Load(ctx, id, es.InitialSequence)
	require.Nil(t, err)
	assert.Equal(t, es.Sequence(50), aggregate.Sequence)
	assert.Len(t, aggregate.Events, 50)
}

func TestSqliteSnapshotStoreIgnoresStaleWrites(t *testing.T) {
	ctx := context.Background()
	_, db, err := Open(ctx, ":memory:")
	require.Nil(t, err)
	defer db.Close()

	store := NewSnapshotStore(db)
	id := es.AggregateId{Type: "snapshot-test", Key: "stale"}

	state, err := es.MarshalToData(map[string]int{"total": 5})
	require.Nil(t, err)

	err = store.Save(ctx, es.Snapshot{AggregateId: id, Sequence: es.Sequence(5), State: state})
	assert.Nil(t, err)

	stale, err := es.MarshalToData(map[string]int{"total": 3})
	require.Nil(t, err)

	err = store.Save(ctx, es.Snapshot{AggregateId: id, Sequence: es.Sequence(3), State: stale})
	assert.Nil(t, err)

	snapshot, found, err := store.LoadLatest(ctx, id)
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, es.Sequence(5), snapshot.Sequence)
	assert.Equal(t, state.Data, snapshot.State.Data)
}

func TestSqliteCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, db, err := Open(ctx, ":memory:")
	require.Nil(t, err)
	defer db.Close()

	store := NewCheckpointStore(db)

	position, err := store.Position(ctx, "summaries")
	assert.Nil(t, err)
	assert.Equal(t, int64(0), position)

	assert.Nil(t, store.SavePosition(ctx, "summaries", 7))
	assert.Nil(t, store.SavePosition(ctx, "summaries", 12))

	position, err = store.Position(ctx, "summaries")
	assert.Nil(t, err)
	assert.Equal(t, int64(12), position)
}

func TestSqliteWatermarkNeverRewinds(t *testing.T) {
	ctx := context.Background()
	_, db, err := Open(ctx, ":memory:")
	require.Nil(t, err)
	defer db.Close()

	store := NewWatermarkStore(db)
	id := es.AggregateId{Type: "watermark-test", Key: "forward-only"}

	assert.Nil(t, store.Advance(ctx, "summaries", id, es.Sequence(4)))
	assert.Nil(t, store.Advance(ctx, "summaries", id, es.Sequence(2)))

	watermark, err := store.Watermark(ctx, "summaries", id)
	assert.Nil(t, err)
	assert.Equal(t, es.Sequence(4), watermark)

	assert.Nil(t, store.Advance(ctx, "summaries", id, es.Sequence(9)))

	watermark, err = store.Watermark(ctx, "summaries", id)
	assert.Nil(t, err)
	assert.Equal(t, es.Sequence(9), watermark)
}

func TestSqliteDeadLetterRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, db, err := Open(ctx, ":memory:")
	require.Nil(t, err)
	defer db.Close()

	store := NewDeadLetterStore(db)

	payload, err := es.MarshalToData(sqliteTestEvent{Value: 9})
	require.Nil(t, err)

	event := es.RecordedEvent{
		AggregateId: es.AggregateId{Type: "dead-letter-test", Key: "stuck"},
		Sequence:    es.Sequence(3),
		EventID:     es.EventID("01GR6JDFKAE9ZT6YZ2YB91K37M"),
		EventType:   es.EventTypeOf(sqliteTestEvent{}),
		Data:        payload,
	}

	letter := projection.NewDeadLetter("summaries", event, 5, errors.New("handler kept failing"))
	assert.Nil(t, store.Record(ctx, letter))

	pending, err := store.Pending(ctx, "summaries")
	assert.Nil(t, err)

	if assert.Len(t, pending, 1) {
		recovered := pending[0]
		assert.Equal(t, "summaries", recovered.Projection)
		assert.Equal(t, event.EventID, recovered.Event.EventID)
		assert.Equal(t, event.AggregateId, recovered.Event.AggregateId)
		assert.Equal(t, event.Sequence, recovered.Event.Sequence)
		assert.Equal(t, event.EventType, recovered.Event.EventType)
		assert.Equal(t, payload.Data, recovered.Event.Data.Data)
		assert.Equal(t, uint(5), recovered.Attempts)
		assert.Equal(t, "handler kept failing", recovered.LastError)
		assert.WithinDuration(t, time.Now().UTC(), recovered.FailedAt, time.Minute)
	}

	none, err := store.Pending(ctx, "other")
	assert.Nil(t, err)
	assert.Empty(t, none)
}
