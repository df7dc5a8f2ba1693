package memory

import (
	"context"
	"sync"

	es "github.com/ebbtide-io/ebb-events-go"
	"github.com/ebbtide-io/ebb-events-go/projection"
)

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		positions: make(map[string]int64),
	}
}

// CheckpointStore tracks relay subscriber positions in memory.
type CheckpointStore struct {
	lk        sync.RWMutex
	positions map[string]int64
}

func (s *CheckpointStore) Position(ctx context.Context, subscriber string) (int64, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	return s.positions[subscriber], nil
}

func (s *CheckpointStore) SavePosition(ctx context.Context, subscriber string, position int64) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	s.positions[subscriber] = position
	return nil
}

// Reset rewinds a subscriber to the start of the feed, forcing redelivery.
func (s *CheckpointStore) Reset(subscriber string) {
	s.lk.Lock()
	defer s.lk.Unlock()

	delete(s.positions, subscriber)
}

type watermarkKey struct {
	projection string
	aggregate  es.EncodedAggregateId
}

func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{
		watermarks: make(map[watermarkKey]es.Sequence),
	}
}

type WatermarkStore struct {
	lk         sync.RWMutex
	watermarks map[watermarkKey]es.Sequence
}

func (s *WatermarkStore) Watermark(ctx context.Context, name string, id es.AggregateId) (es.Sequence, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	return s.watermarks[watermarkKey{projection: name, aggregate: id.Encode()}], nil
}

func (s *WatermarkStore) Advance(ctx context.Context, name string, id es.AggregateId, sequence es.Sequence) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	key := watermarkKey{projection: name, aggregate: id.Encode()}
	if sequence.After(s.watermarks[key]) {
		s.watermarks[key] = sequence
	}

	return nil
}

func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{}
}

type DeadLetterStore struct {
	lk      sync.RWMutex
	letters []projection.DeadLetter
}

func (s *DeadLetterStore) Record(ctx context.Context, letter projection.DeadLetter) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	s.letters = append(s.letters, letter)
	return nil
}

func (s *DeadLetterStore) Pending(ctx context.Context, name string) ([]projection.DeadLetter, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	var pending []projection.DeadLetter
	for _, letter := range s.letters {
		if letter.Projection == name {
			pending = append(pending, letter)
		}
	}

	return pending, nil
}
