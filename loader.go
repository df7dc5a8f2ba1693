package es

import (
	"context"

	"go.opentelemetry.io/otel"
)

// EntityLoader replays an entity from the latest snapshot plus subsequent
// events. Snapshots is optional; without it every load is a full replay from
// the first event.
type EntityLoader[T any] struct {
	Events    EventStore
	Snapshots SnapshotStore
	Renderer  *Renderer[T]
}

func (l *EntityLoader[T]) Load(ctx context.Context, id AggregateId) (Entity[T], error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "load entity")
	defer span.End()

	var seed *T
	after := InitialSequence

	if l.Snapshots != nil {
		snapshot, found, err := l.Snapshots.LoadLatest(ctx, id)
		if err != nil {
			return Entity[T]{}, err
		}

		if found {
			state := new(T)
			if err := UnmarshalFromData(snapshot.State, state); err != nil {
				// a corrupt snapshot is recoverable; fall back to full replay
				seed = nil
			} else {
				seed = state
				after = snapshot.Sequence
			}
		}
	}

	aggregate, err := l.Events.Load(ctx, id, after)
	if err != nil {
		return Entity[T]{}, err
	}

	if seed != nil && aggregate.Sequence < after {
		// snapshot is ahead of the event log; trust the log
		full, err := l.Events.Load(ctx, id, InitialSequence)
		if err != nil {
			return Entity[T]{}, err
		}

		return l.Renderer.Render(ctx, full)
	}

	return l.Renderer.RenderFrom(ctx, aggregate, seed)
}
