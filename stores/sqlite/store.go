// Package sqlite implements the event, snapshot and projection bookkeeping
// stores on a single SQLite database, using the pure-Go modernc driver. The
// aggregate_heads table gives the expected-sequence check an O(1) read; the
// unique constraint on (aggregate_type, aggregate_key, sequence) backstops it
// against racing writers.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	es "github.com/ebbtide-io/ebb-events-go"
)

const driverName = "sqlite"

// Open opens the database, applies the schema, and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, *sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open sqlite database")
	}

	// modernc's driver serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent appends
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return NewStore(db), db, nil
}

type StoreOption func(store *Store)

func WithClock(clock es.Clock) StoreOption {
	return func(store *Store) {
		store.clock = clock
	}
}

func WithIdGenerator(generator es.IDGenerator) StoreOption {
	return func(store *Store) {
		store.id = generator
	}
}

func NewStore(db *sql.DB, options ...StoreOption) *Store {
	store := &Store{db: db}

	for _, option := range options {
		option(store)
	}

	if store.clock == nil {
		store.clock = es.SystemClock{}
	}

	if store.id == nil {
		store.id = es.NewIDGenerator(store.clock)
	}

	return store
}

type Store struct {
	db    *sql.DB
	clock es.Clock
	id    es.IDGenerator
}

func (s *Store) Load(ctx context.Context, id es.AggregateId, after es.Sequence) (es.Aggregate, error) {
	// events and head must come from the same transaction; reading them
	// separately lets a concurrent append tear the view, with the head ahead
	// of the events actually loaded
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return es.Aggregate{}, errors.Wrap(es.ErrStoreUnavailable, err.Error())
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT position, sequence, event_id, event_type, occurred_at,
		       correlation_id, causation_id, encoding, payload
		FROM events
		WHERE aggregate_type = ? AND aggregate_key = ? AND sequence > ?
		ORDER BY sequence`,
		id.Type, id.Key, int64(after),
	)
	if err != nil {
		return es.Aggregate{}, errors.Wrap(es.ErrStoreUnavailable, err.Error())
	}
	defer rows.Close()

	var events []es.RecordedEvent
	for rows.Next() {
		var event es.RecordedEvent
		var sequence int64
		var eventId, eventType, occurredAt, correlationId, causationId string

		err := rows.Scan(
			&event.Position, &sequence, &eventId, &eventType, &occurredAt,
			&correlationId, &causationId, &event.Data.Encoding, &event.Data.Data,
		)
		if err != nil {
			return es.Aggregate{}, errors.Wrap(err, "failed to scan event row")
		}

		event.AggregateId = id
		event.Sequence = es.Sequence(sequence)
		event.EventID = es.EventID(eventId)
		event.EventType = es.EventType(eventType)
		event.Timestamp = es.Timestamp(occurredAt)
		event.Metadata = es.RecordedEventMetadata{
			CorrelationId: es.CorrelationID(correlationId),
			CausationId:   es.EventID(causationId),
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return es.Aggregate{}, errors.Wrap(err, "failed to read events")
	}

	head, err := s.head(ctx, tx, id)
	if err != nil {
		return es.Aggregate{}, err
	}

	if err := tx.Commit(); err != nil {
		return es.Aggregate{}, errors.Wrap(es.ErrStoreUnavailable, err.Error())
	}

	return es.Aggregate{
		Id:       id,
		Events:   events,
		Sequence: head,
	}, nil
}

func (s *Store) Append(ctx context.Context, id es.AggregateId, options es.AppendOptions, events ...es.DomainEvent) (es.Sequence, error) {
	if len(events) == 0 {
		return es.InitialSequence, es.Invalid("attempted to append an empty batch")
	}

	timestamp := es.TimestampFromTime(s.clock.Now())

	// marshal everything up front so a bad payload aborts before the
	// transaction opens
	payloads := make([]es.Data, len(events))
	types := make([]es.EventType, len(events))
	for i, event := range events {
		data, err := es.MarshalToData(event)
		if err != nil {
			return es.InitialSequence, err
		}

		payloads[i] = data
		types[i] = es.EventTypeOf(event)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return es.InitialSequence, errors.Wrap(es.ErrStoreUnavailable, err.Error())
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := s.head(ctx, tx, id)
	if err != nil {
		return es.InitialSequence, err
	}

	if options.Checked() && current != options.ExpectedSequence {
		return es.InitialSequence, es.ErrSequenceConflict
	}

	sequence := current
	for i := range events {
		sequence = sequence.Next()

		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (
				aggregate_type, aggregate_key, sequence, event_id, event_type,
				occurred_at, correlation_id, causation_id, encoding, payload
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id.Type, id.Key, int64(sequence), s.id.Create().String(), types[i].String(),
			timestamp.String(),
			options.RecordedEventMetadata.CorrelationId.String(),
			options.RecordedEventMetadata.CausationId.String(),
			payloads[i].Encoding, payloads[i].Data,
		)
		if err != nil {
			return es.InitialSequence, maybeSequenceConflict(err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO aggregate_heads (aggregate_type, aggregate_key, sequence)
		VALUES (?, ?, ?)
		ON CONFLICT (aggregate_type, aggregate_key)
		DO UPDATE SET sequence = excluded.sequence`,
		id.Type, id.Key, int64(sequence),
	)
	if err != nil {
		return es.InitialSequence, errors.Wrap(err, "failed to advance aggregate head")
	}

	if err := tx.Commit(); err != nil {
		return es.InitialSequence, maybeSequenceConflict(err)
	}

	return sequence, nil
}

func (s *Store) ReadAll(ctx context.Context, after int64, limit int) ([]es.RecordedEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, aggregate_type, aggregate_key, sequence, event_id,
		       event_type, occurred_at, correlation_id, causation_id, encoding, payload
		FROM events
		WHERE position > ?
		ORDER BY position
		LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, errors.Wrap(es.ErrStoreUnavailable, err.Error())
	}
	defer rows.Close()

	var events []es.RecordedEvent
	for rows.Next() {
		var event es.RecordedEvent
		var sequence int64
		var aggregateType, aggregateKey string
		var eventId, eventType, occurredAt, correlationId, causationId string

		err := rows.Scan(
			&event.Position, &aggregateType, &aggregateKey, &sequence, &eventId,
			&eventType, &occurredAt, &correlationId, &causationId,
			&event.Data.Encoding, &event.Data.Data,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan event row")
		}

		event.AggregateId = es.AggregateId{Type: aggregateType, Key: aggregateKey}
		event.Sequence = es.Sequence(sequence)
		event.EventID = es.EventID(eventId)
		event.EventType = es.EventType(eventType)
		event.Timestamp = es.Timestamp(occurredAt)
		event.Metadata = es.RecordedEventMetadata{
			CorrelationId: es.CorrelationID(correlationId),
			CausationId:   es.EventID(causationId),
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) head(ctx context.Context, q querier, id es.AggregateId) (es.Sequence, error) {
	var sequence int64

	err := q.QueryRowContext(ctx, `
		SELECT sequence FROM aggregate_heads
		WHERE aggregate_type = ? AND aggregate_key = ?`,
		id.Type, id.Key,
	).Scan(&sequence)

	if errors.Is(err, sql.ErrNoRows) {
		return es.InitialSequence, nil
	}
	if err != nil {
		return es.InitialSequence, errors.Wrap(err, "failed to read aggregate head")
	}

	return es.Sequence(sequence), nil
}

func maybeSequenceConflict(err error) error {
	if err == nil {
		return nil
	}

	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return es.ErrSequenceConflict
	}

	return errors.Wrap(err, "failed to append events")
}
