package es

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

const tracerName = "ebb-events"

// EntityService is the command entry point for one aggregate kind. Execute is
// synchronous: it returns once events are durably appended, before any
// projection has observed them.
type EntityService[T any] interface {
	Load(ctx context.Context, id AggregateId) (Entity[T], error)
	Execute(ctx context.Context, id AggregateId, command Command, options ...AppendOption) (Entity[T], error)
}

const DefaultExecuteAttempts = uint(3)

type ServiceOption[T any] func(service *entityService[T])

// WithExecuteAttempts bounds the load-dispatch-append cycles attempted when
// appends fail with a sequence conflict.
func WithExecuteAttempts[T any](attempts uint) ServiceOption[T] {
	return func(service *entityService[T]) {
		service.attempts = attempts
	}
}

// WithExecuteTimeout caps the total time spent executing a command, retries
// included.
func WithExecuteTimeout[T any](timeout time.Duration) ServiceOption[T] {
	return func(service *entityService[T]) {
		service.timeout = timeout
	}
}

func WithSnapshotter[T any](snapshotter *Snapshotter[T]) ServiceOption[T] {
	return func(service *entityService[T]) {
		service.snapshotter = snapshotter
	}
}

func NewEntityService[T any](
	events EventStore,
	loader *EntityLoader[T],
	dispatcher Dispatcher[T],
	options ...ServiceOption[T],
) *entityService[T] {
	service := &entityService[T]{
		events:     events,
		loader:     loader,
		dispatcher: dispatcher,
		attempts:   DefaultExecuteAttempts,
	}

	for _, option := range options {
		option(service)
	}

	return service
}

type entityService[T any] struct {
	events      EventStore
	loader      *EntityLoader[T]
	dispatcher  Dispatcher[T]
	snapshotter *Snapshotter[T]
	attempts    uint
	timeout     time.Duration
}

func (s *entityService[T]) Load(ctx context.Context, id AggregateId) (Entity[T], error) {
	return s.loader.Load(ctx, id)
}

// Execute replays the aggregate, dispatches the command against the replayed
// state, and appends the recorded events with the replayed sequence as the
// expected sequence. On a sequence conflict the whole cycle is retried from a
// fresh load; once attempts are exhausted the conflict is returned to the
// caller. Handler errors are never retried.
func (s *entityService[T]) Execute(ctx context.Context, id AggregateId, command Command, options ...AppendOption) (Entity[T], error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "execute command")
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var entity Entity[T]

	err := retry.Do(
		func() error {
			replayed, err := s.loader.Load(ctx, id)
			if err != nil {
				return err
			}

			staged := &stagingRecorder{}
			if err := s.dispatcher.Dispatch(ctx, replayed, command, staged.record); err != nil {
				return err
			}

			if len(staged.events) == 0 {
				entity = replayed
				return nil
			}

			appendOptions := append(options[:len(options):len(options)], WithExpectedSequence(replayed.Sequence))
			if _, err := s.events.Append(ctx, id, Options(appendOptions...), staged.events...); err != nil {
				return err
			}

			entity, err = s.loader.Load(ctx, id)
			if err != nil {
				return err
			}

			if s.snapshotter != nil {
				s.snapshotter.MaybeSnapshot(ctx, entity)
			}

			return nil
		},
		retry.Attempts(s.attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrSequenceConflict) && ctx.Err() == nil
		}),
	)

	if err != nil {
		return Entity[T]{}, err
	}

	return entity, nil
}

type stagingRecorder struct {
	events []DomainEvent
}

func (r *stagingRecorder) record(ctx context.Context, events ...DomainEvent) error {
	r.events = append(r.events, events...)
	return nil
}
