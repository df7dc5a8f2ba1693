package es

import (
	"context"

	"github.com/goccy/go-json"
)

type CommandName string
type Command any

type RemoteCommand struct {
	CommandName CommandName `json:"command"`
	Payload     Data        `json:"payload"`
}

func CommandNameOf(command Command) CommandName {
	var name CommandName
	switch cmd := command.(type) {
	case RemoteCommand:
		name = cmd.CommandName
	default:
		name = CommandName(NameOf(command))
	}

	return name
}

// EventRecorder stages events produced by a command handler. Staged events
// are not durable; the entity service appends them with the replayed sequence
// as the expected sequence once the handler returns.
type EventRecorder func(ctx context.Context, events ...DomainEvent) error

// CommandHandler validates a command against the replayed entity state and
// records the resulting events. Invariant violations are returned as
// ValidationError and record nothing.
type CommandHandler[T any] interface {
	HandleCommand(ctx context.Context, cmd Command, state Entity[T], record EventRecorder) error
	HandleRemoteCommand(ctx context.Context, cmd RemoteCommand, state Entity[T], record EventRecorder) error
}

type CommandHandlerFunction[T any, C any] func(ctx context.Context, cmd C, state Entity[T], record EventRecorder) error

func (f CommandHandlerFunction[T, C]) HandleCommand(ctx context.Context, cmd Command, state Entity[T], record EventRecorder) error {
	command, ok := cmd.(C)
	if !ok {
		return UnexpectedCommand(cmd)
	}

	return f(ctx, command, state, record)
}

func (f CommandHandlerFunction[T, C]) HandleRemoteCommand(ctx context.Context, cmd RemoteCommand, state Entity[T], record EventRecorder) error {
	var command C

	if cmd.Payload.Encoding != jsonEncoding {
		return InvalidEncoding(jsonEncoding, cmd.Payload.Encoding)
	}

	if err := json.UnmarshalContext(ctx, cmd.Payload.Data, &command); err != nil {
		return err
	}

	return f(ctx, command, state, record)
}
