package es

type EntityType string

func (et EntityType) String() string {
	return string(et)
}

type EntityTyped interface {
	EntityType() EntityType
}

func EntityTypeOf(state any) EntityType {
	if named, ok := state.(EntityTyped); ok == true {
		return named.EntityType()
	}

	return EntityType(NameOf(state))
}

// Entity is an aggregate's replayed state at a point in its history. It is
// transient; only events and snapshots are persisted.
type Entity[T any] struct {
	Aggregate AggregateId
	Sequence  Sequence
	Type      EntityType
	State     *T
}

func (e *Entity[T]) Initialized() bool {
	return e.Sequence != InitialSequence
}
