package es

import (
	"context"

	"github.com/rs/zerolog"
)

// Snapshot is a cached serialization of aggregate state at a sequence. It is
// advisory: combined with the events after its sequence it must reproduce the
// state a full replay would, and replay must work without it.
type Snapshot struct {
	AggregateId AggregateId `json:"aggregate"`
	Sequence    Sequence    `json:"sequence"`
	State       Data        `json:"state"`
	SavedAt     Timestamp   `json:"savedAt"`
}

type SnapshotStore interface {
	Save(ctx context.Context, snapshot Snapshot) error
	LoadLatest(ctx context.Context, id AggregateId) (Snapshot, bool, error)
}

type SnapshotPolicy interface {
	ShouldSnapshot(lastSnapshot Sequence, current Sequence) bool
}

type SnapshotPolicyFunction func(lastSnapshot Sequence, current Sequence) bool

func (f SnapshotPolicyFunction) ShouldSnapshot(lastSnapshot Sequence, current Sequence) bool {
	return f(lastSnapshot, current)
}

// SnapshotEvery snapshots once the aggregate has accumulated threshold events
// past the previous snapshot.
func SnapshotEvery(threshold Sequence) SnapshotPolicy {
	return SnapshotPolicyFunction(func(lastSnapshot Sequence, current Sequence) bool {
		return current-lastSnapshot >= threshold
	})
}

const DefaultSnapshotThreshold = Sequence(100)

func NewSnapshotter[T any](store SnapshotStore, policy SnapshotPolicy, clock Clock, log zerolog.Logger) *Snapshotter[T] {
	if policy == nil {
		policy = SnapshotEvery(DefaultSnapshotThreshold)
	}

	if clock == nil {
		clock = SystemClock{}
	}

	return &Snapshotter[T]{
		store:  store,
		policy: policy,
		clock:  clock,
		log:    log,
	}
}

type Snapshotter[T any] struct {
	store  SnapshotStore
	policy SnapshotPolicy
	clock  Clock
	log    zerolog.Logger
}

// MaybeSnapshot records the entity's state if the policy calls for it. It is
// best effort: a failed snapshot is logged and never fails the originating
// command. Saving twice at the same sequence is a harmless overwrite.
func (s *Snapshotter[T]) MaybeSnapshot(ctx context.Context, entity Entity[T]) {
	if s == nil || s.store == nil {
		return
	}

	latest, found, err := s.store.LoadLatest(ctx, entity.Aggregate)
	if err != nil {
		s.log.Warn().Err(err).
			Str("aggregate", entity.Aggregate.Encode().String()).
			Msg("failed to read latest snapshot")
		return
	}

	last := InitialSequence
	if found {
		last = latest.Sequence
	}

	if !s.policy.ShouldSnapshot(last, entity.Sequence) {
		return
	}

	state, err := MarshalToData(entity.State)
	if err != nil {
		s.log.Warn().Err(err).
			Str("aggregate", entity.Aggregate.Encode().String()).
			Msg("failed to serialize snapshot state")
		return
	}

	snapshot := Snapshot{
		AggregateId: entity.Aggregate,
		Sequence:    entity.Sequence,
		State:       state,
		SavedAt:     TimestampFromTime(s.clock.Now()),
	}

	if err := s.store.Save(ctx, snapshot); err != nil {
		s.log.Warn().Err(err).
			Str("aggregate", entity.Aggregate.Encode().String()).
			Str("sequence", entity.Sequence.String()).
			Msg("failed to save snapshot")
	}
}
