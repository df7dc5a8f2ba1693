package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	es "github.com/ebbtide-io/ebb-events-go"
)

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SnapshotStore keeps one row per aggregate, guarded so that an older
// snapshot can never overwrite a newer one. Re-saving at the same sequence is
// a no-op.
type SnapshotStore struct {
	db *sql.DB
}

func (s *SnapshotStore) Save(ctx context.Context, snapshot es.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_type, aggregate_key, sequence, encoding, state, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (aggregate_type, aggregate_key)
		DO UPDATE SET
			sequence = excluded.sequence,
			encoding = excluded.encoding,
			state = excluded.state,
			saved_at = excluded.saved_at
		WHERE snapshots.sequence < excluded.sequence`,
		snapshot.AggregateId.Type, snapshot.AggregateId.Key, int64(snapshot.Sequence),
		snapshot.State.Encoding, snapshot.State.Data, snapshot.SavedAt.String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to save snapshot")
	}

	return nil
}

func (s *SnapshotStore) LoadLatest(ctx context.Context, id es.AggregateId) (es.Snapshot, bool, error) {
	var sequence int64
	var savedAt string
	snapshot := es.Snapshot{AggregateId: id}

	err := s.db.QueryRowContext(ctx, `
		SELECT sequence, encoding, state, saved_at FROM snapshots
		WHERE aggregate_type = ? AND aggregate_key = ?`,
		id.Type, id.Key,
	).Scan(&sequence, &snapshot.State.Encoding, &snapshot.State.Data, &savedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return es.Snapshot{}, false, nil
	}
	if err != nil {
		return es.Snapshot{}, false, errors.Wrap(err, "failed to load snapshot")
	}

	snapshot.Sequence = es.Sequence(sequence)
	snapshot.SavedAt = es.Timestamp(savedAt)

	return snapshot, true, nil
}
