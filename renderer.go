package es

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

type Reducers[T any] map[EventType]Reducer[T]
type Initializers[T any] map[EventType]Initializer[T]

// Renderer reconstructs entity state as a pure fold over recorded events. The
// reducer and initializer tables are closed; replaying an event type absent
// from both is an error rather than a silent skip.
type Renderer[T any] struct {
	Initializers Initializers[T]
	Reducers     Reducers[T]
}

func (r *Renderer[T]) Render(ctx context.Context, aggregate Aggregate) (Entity[T], error) {
	return r.RenderFrom(ctx, aggregate, nil)
}

// RenderFrom folds the aggregate's events on top of a snapshot-seeded state.
// A nil seed renders from the aggregate's initial state.
func (r *Renderer[T]) RenderFrom(ctx context.Context, aggregate Aggregate, seed *T) (Entity[T], error) {
	state := seed

	var name T
	_, span := otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("render %s", NameOf(name)))
	defer span.End()

	for i := range aggregate.Events {
		event := &aggregate.Events[i]

		next, err := r.apply(state, event)
		if err != nil {
			return Entity[T]{}, errors.Wrap(
				err,
				fmt.Sprintf("failed to render %s at sequence %s", aggregate.Id.Encode(), event.Sequence),
			)
		}

		state = next
	}

	if state == nil {
		state = new(T)
	}

	return Entity[T]{
		Aggregate: aggregate.Id,
		Sequence:  aggregate.Sequence,
		Type:      EntityTypeOf(*state),
		State:     state,
	}, nil
}

func (r *Renderer[T]) apply(state *T, event *RecordedEvent) (*T, error) {
	if state == nil {
		if initializer := r.Initializers[event.EventType]; initializer != nil {
			return initializer.Initialize(event)
		}

		state = new(T)
	}

	reducer := r.Reducers[event.EventType]
	if reducer == nil {
		return nil, UnknownEventTypeError{EventType: event.EventType}
	}

	if err := reducer.Reduce(state, event); err != nil {
		return nil, err
	}

	return state, nil
}
