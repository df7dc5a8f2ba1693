package memory

import (
	"context"
	"sync"

	es "github.com/ebbtide-io/ebb-events-go"
)

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[es.EncodedAggregateId]es.Snapshot),
	}
}

// SnapshotStore keeps the latest snapshot per aggregate. Older snapshots are
// discarded on overwrite; retention is not this store's concern.
type SnapshotStore struct {
	lk        sync.RWMutex
	snapshots map[es.EncodedAggregateId]es.Snapshot
}

func (s *SnapshotStore) Save(ctx context.Context, snapshot es.Snapshot) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	existing, found := s.snapshots[snapshot.AggregateId.Encode()]
	if found && existing.Sequence.After(snapshot.Sequence) {
		return nil
	}

	s.snapshots[snapshot.AggregateId.Encode()] = snapshot
	return nil
}

func (s *SnapshotStore) LoadLatest(ctx context.Context, id es.AggregateId) (es.Snapshot, bool, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	snapshot, found := s.snapshots[id.Encode()]
	return snapshot, found, nil
}
