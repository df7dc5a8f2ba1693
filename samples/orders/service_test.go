package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	we "github.com/ebbtide-io/ebb-events-go"
	"github.com/ebbtide-io/ebb-events-go/stores/memory"
)

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	service := CreateOrderService(memory.NewEventStore())
	id := OrderId("lifecycle")

	entity, err := service.Execute(ctx, id, CreateOrder{Amount: 250})
	require.Nil(t, err)
	assert.Equal(t, StatusPending, entity.State.Status)
	assert.Equal(t, int64(250), entity.State.Amount)
	assert.Equal(t, we.Sequence(1), entity.Sequence)

	entity, err = service.Execute(ctx, id, ConfirmOrder{})
	require.Nil(t, err)
	assert.Equal(t, StatusConfirmed, entity.State.Status)
	assert.Equal(t, we.Sequence(2), entity.Sequence)

	entity, err = service.Execute(ctx, id, DeliverOrder{})
	require.Nil(t, err)
	assert.Equal(t, StatusDelivered, entity.State.Status)
	assert.Equal(t, we.Sequence(3), entity.Sequence)
}

func TestCreateRejectsDuplicateOrders(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	service := CreateOrderService(store)
	id := OrderId("duplicate")

	_, err := service.Execute(ctx, id, CreateOrder{Amount: 100})
	require.Nil(t, err)

	_, err = service.Execute(ctx, id, CreateOrder{Amount: 100})
	assert.True(t, we.IsValidationError(err))

	// a rejected command appends nothing
	aggregate, err := store.Load(ctx, id, we.InitialSequence)
	require.Nil(t, err)
	assert.Equal(t, we.Sequence(1), aggregate.Sequence)
	assert.Len(t, aggregate.Events, 1)
}

func TestCreateRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	service := CreateOrderService(store)
	id := OrderId("zero-amount")

	_, err := service.Execute(ctx, id, CreateOrder{Amount: 0})
	assert.True(t, we.IsValidationError(err))

	aggregate, err := store.Load(ctx, id, we.InitialSequence)
	require.Nil(t, err)
	assert.Equal(t, we.InitialSequence, aggregate.Sequence)
}

func TestCommandsOnMissingOrders(t *testing.T) {
	ctx := context.Background()
	service := CreateOrderService(memory.NewEventStore())
	id := OrderId("missing")

	for _, command := range []we.Command{ConfirmOrder{}, CancelOrder{}, DeliverOrder{}} {
		_, err := service.Execute(ctx, id, command)

		var notFound we.AggregateNotFoundError
		assert.ErrorAs(t, err, &notFound)
		assert.Equal(t, id, notFound.Id)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service := CreateOrderService(memory.NewEventStore())
	id := OrderId("confirm-twice")

	_, err := service.Execute(ctx, id, CreateOrder{Amount: 40})
	require.Nil(t, err)

	first, err := service.Execute(ctx, id, ConfirmOrder{})
	require.Nil(t, err)

	second, err := service.Execute(ctx, id, ConfirmOrder{})
	require.Nil(t, err)

	// a no-op command records no events
	assert.Equal(t, first.Sequence, second.Sequence)
	assert.Equal(t, StatusConfirmed, second.State.Status)
}

func TestDeliveredOrdersCannotBeCancelled(t *testing.T) {
	ctx := context.Background()
	service := CreateOrderService(memory.NewEventStore())
	id := OrderId("too-late")

	_, err := service.Execute(ctx, id, CreateOrder{Amount: 75})
	require.Nil(t, err)
	_, err = service.Execute(ctx, id, ConfirmOrder{})
	require.Nil(t, err)
	_, err = service.Execute(ctx, id, DeliverOrder{})
	require.Nil(t, err)

	_, err = service.Execute(ctx, id, CancelOrder{Reason: "changed my mind"})
	assert.True(t, we.IsValidationError(err))

	entity, err := service.Load(ctx, id)
	require.Nil(t, err)
	assert.Equal(t, StatusDelivered, entity.State.Status)
}

func TestCancelRecordsReason(t *testing.T) {
	ctx := context.Background()
	service := CreateOrderService(memory.NewEventStore())
	id := OrderId("cancelled")

	_, err := service.Execute(ctx, id, CreateOrder{Amount: 75})
	require.Nil(t, err)

	entity, err := service.Execute(ctx, id, CancelOrder{Reason: "out of stock"})
	require.Nil(t, err)
	assert.Equal(t, StatusCancelled, entity.State.Status)
	assert.Equal(t, "out of stock", entity.State.Reason)
}

// conflictingStore fails the first appends with a sequence conflict, as a
// concurrent writer would, then lets them through.
type conflictingStore struct {
	we.EventStore
	conflicts int
}

func (s *conflictingStore) Append(ctx context.Context, id we.AggregateId, options we.AppendOptions, events ...we.DomainEvent) (we.Sequence, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return we.InitialSequence, we.ErrSequenceConflict
	}

	return s.EventStore.Append(ctx, id, options, events...)
}

func TestExecuteRetriesSequenceConflicts(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{EventStore: memory.NewEventStore(), conflicts: 2}
	service := CreateOrderService(store)
	id := OrderId("contended")

	entity, err := service.Execute(ctx, id, CreateOrder{Amount: 10})

	require.Nil(t, err)
	assert.Equal(t, we.Sequence(1), entity.Sequence)
	assert.Equal(t, StatusPending, entity.State.Status)
}

func TestExecuteSurfacesExhaustedConflicts(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{EventStore: memory.NewEventStore(), conflicts: 5}
	service := CreateOrderService(store)
	id := OrderId("hot")

	_, err := service.Execute(ctx, id, CreateOrder{Amount: 10})
	assert.ErrorIs(t, err, we.ErrSequenceConflict)
	assert.Equal(t, 2, store.conflicts)
}

func TestConfiguredServiceSnapshotsOnPolicy(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	service := CreateConfiguredOrderService(memory.NewEventStore(), we.ServiceConfig[Order]{
		Snapshots: snapshots,
		Policy:    we.SnapshotEvery(2),
	})
	id := OrderId("snapshotted")

	_, err := service.Execute(ctx, id, CreateOrder{Amount: 60})
	require.Nil(t, err)

	_, found, err := snapshots.LoadLatest(ctx, id)
	require.Nil(t, err)
	assert.False(t, found)

	_, err = service.Execute(ctx, id, ConfirmOrder{})
	require.Nil(t, err)

	snapshot, found, err := snapshots.LoadLatest(ctx, id)
	require.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, we.Sequence(2), snapshot.Sequence)

	// the snapshot-seeded load matches the full replay
	entity, err := service.Load(ctx, id)
	require.Nil(t, err)
	assert.Equal(t, StatusConfirmed, entity.State.Status)
	assert.Equal(t, int64(60), entity.State.Amount)
}
