package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	es "github.com/ebbtide-io/ebb-events-go"
	"github.com/ebbtide-io/ebb-events-go/projection"
)

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

type CheckpointStore struct {
	db *sql.DB
}

func (s *CheckpointStore) Position(ctx context.Context, subscriber string) (int64, error) {
	var position int64

	err := s.db.QueryRowContext(ctx,
		`SELECT position FROM checkpoints WHERE subscriber = ?`, subscriber,
	).Scan(&position)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read checkpoint")
	}

	return position, nil
}

func (s *CheckpointStore) SavePosition(ctx context.Context, subscriber string, position int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (subscriber, position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (subscriber)
		DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		subscriber, position, es.TimestampFromTime(time.Now()).String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}

	return nil
}

func NewWatermarkStore(db *sql.DB) *WatermarkStore {
	return &WatermarkStore{db: db}
}

type WatermarkStore struct {
	db *sql.DB
}

func (s *WatermarkStore) Watermark(ctx context.Context, name string, id es.AggregateId) (es.Sequence, error) {
	var sequence int64

	err := s.db.QueryRowContext(ctx, `
		SELECT sequence FROM watermarks
		WHERE projection = ? AND aggregate_type = ? AND aggregate_key = ?`,
		name, id.Type, id.Key,
	).Scan(&sequence)

	if errors.Is(err, sql.ErrNoRows) {
		return es.InitialSequence, nil
	}
	if err != nil {
		return es.InitialSequence, errors.Wrap(err, "failed to read watermark")
	}

	return es.Sequence(sequence), nil
}

func (s *WatermarkStore) Advance(ctx context.Context, name string, id es.AggregateId, sequence es.Sequence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (projection, aggregate_type, aggregate_key, sequence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (projection, aggregate_type, aggregate_key)
		DO UPDATE SET sequence = excluded.sequence
		WHERE watermarks.sequence < excluded.sequence`,
		name, id.Type, id.Key, int64(sequence),
	)
	if err != nil {
		return errors.Wrap(err, "failed to advance watermark")
	}

	return nil
}

func NewDeadLetterStore(db *sql.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

type DeadLetterStore struct {
	db *sql.DB
}

func (s *DeadLetterStore) Record(ctx context.Context, letter projection.DeadLetter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (
			projection, event_id, aggregate_type, aggregate_key, sequence,
			event_type, encoding, payload, attempts, last_error, failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		letter.Projection,
		letter.Event.EventID.String(),
		letter.Event.AggregateId.Type,
		letter.Event.AggregateId.Key,
		int64(letter.Event.Sequence),
		letter.Event.EventType.String(),
		letter.Event.Data.Encoding,
		letter.Event.Data.Data,
		letter.Attempts,
		letter.LastError,
		es.TimestampFromTime(letter.FailedAt).String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record dead letter")
	}

	return nil
}

func (s *DeadLetterStore) Pending(ctx context.Context, name string) ([]projection.DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, aggregate_type, aggregate_key, sequence, event_type,
		       encoding, payload, attempts, last_error, failed_at
		FROM dead_letters
		WHERE projection = ?
		ORDER BY id`,
		name,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read dead letters")
	}
	defer rows.Close()

	var letters []projection.DeadLetter
	for rows.Next() {
		letter := projection.DeadLetter{Projection: name}
		var sequence int64
		var eventId, aggregateType, aggregateKey, eventType, failedAt string

		err := rows.Scan(
			&eventId, &aggregateType, &aggregateKey, &sequence, &eventType,
			&letter.Event.Data.Encoding, &letter.Event.Data.Data,
			&letter.Attempts, &letter.LastError, &failedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan dead letter row")
		}

		letter.Event.EventID = es.EventID(eventId)
		letter.Event.AggregateId = es.AggregateId{Type: aggregateType, Key: aggregateKey}
		letter.Event.Sequence = es.Sequence(sequence)
		letter.Event.EventType = es.EventType(eventType)

		if at, err := time.Parse(es.RFC3339Milli, failedAt); err == nil {
			letter.FailedAt = at
		}

		letters = append(letters, letter)
	}

	return letters, rows.Err()
}
