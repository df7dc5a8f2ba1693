package es

type Reducer[T any] interface {
	Reduce(state *T, evt *RecordedEvent) error
}

type ReducerFunction[T any, E any] func(state *T, evt *E) error

func (f ReducerFunction[T, E]) Reduce(state *T, evt *RecordedEvent) error {
	var event E
	if err := DecodeEvent(evt, &event); err != nil {
		return err
	}

	return f(state, &event)
}

type Initializer[T any] interface {
	Initialize(evt *RecordedEvent) (*T, error)
}

type InitializerFunction[T any, E any] func(evt *E) (*T, error)

func (f InitializerFunction[T, E]) Initialize(evt *RecordedEvent) (*T, error) {
	var event E
	if err := DecodeEvent(evt, &event); err != nil {
		return nil, err
	}

	return f(&event)
}
