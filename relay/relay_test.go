package relay

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/ebbtide-io/ebb-events-go"
	"github.com/ebbtide-io/ebb-events-go/stores/memory"
)

type relayTestEvent struct {
	Value int `json:"value"`
}

type recordingSubscriber struct {
	name      string
	delivered []es.RecordedEvent
	failAfter int
}

func (s *recordingSubscriber) Name() string {
	return s.name
}

func (s *recordingSubscriber) Deliver(ctx context.Context, event es.RecordedEvent) error {
	if s.failAfter > 0 && len(s.delivered) >= s.failAfter {
		return errors.New("subscriber fell over")
	}

	s.delivered = append(s.delivered, event)
	return nil
}

func appendRelayEvents(t *testing.T, store *memory.EventStore, key string, count int) {
	t.Helper()

	id := es.AggregateId{Type: "relay-test", Key: key}
	for i := 0; i < count; i++ {
		_, err := store.Append(context.Background(), id, es.Options(), relayTestEvent{Value: i})
		require.Nil(t, err)
	}
}

func TestDrainDeliversInFeedOrder(t *testing.T) {
	store := memory.NewEventStore()
	appendRelayEvents(t, store, "ordered", 5)

	subscriber := &recordingSubscriber{name: "ordered"}
	relay := NewRelay(store, memory.NewCheckpointStore(), []Subscriber{subscriber}, WithBatchSize(2))

	delivered, err := relay.Drain(context.Background())

	assert.Nil(t, err)
	assert.Equal(t, 5, delivered)

	if assert.Len(t, subscriber.delivered, 5) {
		for i, event := range subscriber.delivered {
			assert.Equal(t, int64(i+1), event.Position)
		}
	}
}

func TestDrainIsQuietOnceCaughtUp(t *testing.T) {
	store := memory.NewEventStore()
	appendRelayEvents(t, store, "caught-up", 3)

	subscriber := &recordingSubscriber{name: "caught-up"}
	relay := NewRelay(store, memory.NewCheckpointStore(), []Subscriber{subscriber})

	delivered, err := relay.Drain(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 3, delivered)

	delivered, err = relay.Drain(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 0, delivered)
	assert.Len(t, subscriber.delivered, 3)
}

func TestDrainResumesFromCheckpoint(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	appendRelayEvents(t, store, "resume", 3)

	subscriber := &recordingSubscriber{name: "resume"}
	relay := NewRelay(store, checkpoints, []Subscriber{subscriber})

	_, err := relay.Drain(context.Background())
	assert.Nil(t, err)

	appendRelayEvents(t, store, "resume", 2)

	delivered, err := relay.Drain(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 2, delivered)
	assert.Len(t, subscriber.delivered, 5)
}

func TestRewoundCheckpointRedelivers(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	appendRelayEvents(t, store, "rewind", 3)

	subscriber := &recordingSubscriber{name: "rewind"}
	relay := NewRelay(store, checkpoints, []Subscriber{subscriber})

	_, err := relay.Drain(context.Background())
	assert.Nil(t, err)

	checkpoints.Reset("rewind")

	delivered, err := relay.Drain(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 3, delivered)

	// redelivery repeats the same events in the same order
	if assert.Len(t, subscriber.delivered, 6) {
		for i := 0; i < 3; i++ {
			assert.Equal(t, subscriber.delivered[i].EventID, subscriber.delivered[i+3].EventID)
		}
	}
}

func TestFailingSubscriberKeepsItsCheckpoint(t *testing.T) {
	store := memory.NewEventStore()
	checkpoints := memory.NewCheckpointStore()
	appendRelayEvents(t, store, "failing", 4)

	failing := &recordingSubscriber{name: "failing", failAfter: 2}
	healthy := &recordingSubscriber{name: "healthy"}
	relay := NewRelay(store, checkpoints, []Subscriber{failing, healthy})

	_, err := relay.Drain(context.Background())
	assert.Nil(t, err)

	// the healthy subscriber is unaffected by its neighbour's failure
	assert.Len(t, healthy.delivered, 4)
	assert.Len(t, failing.delivered, 2)

	// nothing was acknowledged, so the whole pass is redelivered
	position, err := checkpoints.Position(context.Background(), "failing")
	assert.Nil(t, err)
	assert.Equal(t, int64(0), position)

	failing.failAfter = 0

	delivered, err := relay.Drain(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 4, delivered)
	assert.Len(t, failing.delivered, 6)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	store := memory.NewEventStore()
	relay := NewRelay(store, memory.NewCheckpointStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
