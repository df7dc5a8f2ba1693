package es

import (
	"github.com/rs/zerolog"
)

// ServiceDescriptor declares the closed sets of commands, initializers and
// reducers for one aggregate kind. The maps are resolved once at startup;
// dispatching a command absent from Handlers is reported as
// CommandNotFoundError.
type ServiceDescriptor[T any] struct {
	Handlers     map[CommandName]func() CommandHandler[T]
	Initializers map[EventType]func() Initializer[T]
	Reducers     map[EventType]func() Reducer[T]
}

type ServiceConfig[T any] struct {
	Snapshots  SnapshotStore
	Policy     SnapshotPolicy
	Clock      Clock
	Log        zerolog.Logger
	Middleware []Middleware[T]
	Options    []ServiceOption[T]
}

func CreateService[T any](store EventStore, descriptor ServiceDescriptor[T]) *entityService[T] {
	return CreateConfiguredService(store, descriptor, ServiceConfig[T]{Log: zerolog.Nop()})
}

func CreateConfiguredService[T any](store EventStore, descriptor ServiceDescriptor[T], config ServiceConfig[T]) *entityService[T] {
	handlers := make(CommandHandlers[T], len(descriptor.Handlers))
	for name, handler := range descriptor.Handlers {
		handlers[name] = handler()
	}

	initializers := make(Initializers[T], len(descriptor.Initializers))
	for name, initializer := range descriptor.Initializers {
		initializers[name] = initializer()
	}

	reducers := make(Reducers[T], len(descriptor.Reducers))
	for name, reducer := range descriptor.Reducers {
		reducers[name] = reducer()
	}

	loader := &EntityLoader[T]{
		Events:    store,
		Snapshots: config.Snapshots,
		Renderer: &Renderer[T]{
			Initializers: initializers,
			Reducers:     reducers,
		},
	}

	dispatcher := NewDispatcher(handlers, config.Middleware...)

	options := config.Options
	if config.Snapshots != nil {
		snapshotter := NewSnapshotter[T](config.Snapshots, config.Policy, config.Clock, config.Log)
		options = append(options, WithSnapshotter(snapshotter))
	}

	return NewEntityService(store, loader, dispatcher, options...)
}
