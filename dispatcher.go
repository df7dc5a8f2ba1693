package es

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

type CommandHandlers[T any] map[CommandName]CommandHandler[T]

type Dispatcher[T any] interface {
	Dispatch(ctx context.Context, entity Entity[T], command Command, record EventRecorder) error
}

// Middleware wraps a command handler at registration time. Cross-cutting
// behaviour such as timing or logging is composed explicitly here rather than
// discovered at runtime.
type Middleware[T any] func(name CommandName, next CommandHandler[T]) CommandHandler[T]

type middlewareHandler[T any] struct {
	handle func(ctx context.Context, cmd Command, state Entity[T], record EventRecorder) error
	remote func(ctx context.Context, cmd RemoteCommand, state Entity[T], record EventRecorder) error
}

func (h *middlewareHandler[T]) HandleCommand(ctx context.Context, cmd Command, state Entity[T], record EventRecorder) error {
	return h.handle(ctx, cmd, state, record)
}

func (h *middlewareHandler[T]) HandleRemoteCommand(ctx context.Context, cmd RemoteCommand, state Entity[T], record EventRecorder) error {
	return h.remote(ctx, cmd, state, record)
}

// CommandLogging logs every dispatch with its outcome and duration.
func CommandLogging[T any](log zerolog.Logger) Middleware[T] {
	return func(name CommandName, next CommandHandler[T]) CommandHandler[T] {
		logged := func(aggregate AggregateId, start time.Time, err error) {
			event := log.Info()
			if err != nil {
				event = log.Warn().Err(err)
			}

			event.
				Str("command", string(name)).
				Str("aggregate", aggregate.Encode().String()).
				Dur("duration", time.Since(start)).
				Msg("command dispatched")
		}

		return &middlewareHandler[T]{
			handle: func(ctx context.Context, cmd Command, state Entity[T], record EventRecorder) error {
				start := time.Now()
				err := next.HandleCommand(ctx, cmd, state, record)
				logged(state.Aggregate, start, err)
				return err
			},
			remote: func(ctx context.Context, cmd RemoteCommand, state Entity[T], record EventRecorder) error {
				start := time.Now()
				err := next.HandleRemoteCommand(ctx, cmd, state, record)
				logged(state.Aggregate, start, err)
				return err
			},
		}
	}
}

func NewDispatcher[T any](handlers CommandHandlers[T], middleware ...Middleware[T]) *RoutedDispatcher[T] {
	routed := make(CommandHandlers[T], len(handlers))
	for name, handler := range handlers {
		for i := len(middleware) - 1; i >= 0; i-- {
			handler = middleware[i](name, handler)
		}
		routed[name] = handler
	}

	return &RoutedDispatcher[T]{Handlers: routed}
}

// RoutedDispatcher routes commands to the single registered handler for their
// name. The handler table is closed at construction; a missing handler is a
// configuration error surfaced as CommandNotFoundError.
type RoutedDispatcher[T any] struct {
	Handlers CommandHandlers[T]
}

func (d *RoutedDispatcher[T]) Dispatch(ctx context.Context, entity Entity[T], command Command, record EventRecorder) error {
	commandName := CommandNameOf(command)

	ctx, span := otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("dispatch %s", commandName))
	defer span.End()

	handler := d.Handlers[commandName]
	if handler == nil {
		return CommandNotFound(commandName)
	}

	switch cmd := command.(type) {
	case RemoteCommand:
		return handler.HandleRemoteCommand(ctx, cmd, entity, record)
	default:
		return handler.HandleCommand(ctx, cmd, entity, record)
	}
}

func CommandNotFound(command CommandName) CommandNotFoundError {
	return CommandNotFoundError{Command: command}
}

type CommandNotFoundError struct {
	Command CommandName
}

func (e CommandNotFoundError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Command)
}
