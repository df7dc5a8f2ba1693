// Package relay tails the event store's global feed and delivers recorded
// events to subscribers. The event log stays the source of truth: delivery is
// at-least-once, and a relay restarted from its checkpoint re-derives anything
// it never acknowledged.
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	es "github.com/ebbtide-io/ebb-events-go"
)

// Subscriber consumes recorded events in feed order. Deliveries may repeat;
// subscribers are responsible for their own idempotence. Returning an error
// leaves the subscriber's checkpoint in place, so the same event is delivered
// again on a later pass.
type Subscriber interface {
	Name() string
	Deliver(ctx context.Context, event es.RecordedEvent) error
}

// CheckpointStore persists the last feed position each subscriber has
// acknowledged.
type CheckpointStore interface {
	Position(ctx context.Context, subscriber string) (int64, error)
	SavePosition(ctx context.Context, subscriber string, position int64) error
}

const (
	DefaultInterval  = 250 * time.Millisecond
	DefaultBatchSize = 100
)

type Option func(relay *Relay)

func WithInterval(interval time.Duration) Option {
	return func(relay *Relay) {
		relay.interval = interval
	}
}

func WithBatchSize(size int) Option {
	return func(relay *Relay) {
		relay.batchSize = size
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(relay *Relay) {
		relay.log = log
	}
}

func NewRelay(feed es.EventFeed, checkpoints CheckpointStore, subscribers []Subscriber, options ...Option) *Relay {
	relay := &Relay{
		feed:        feed,
		checkpoints: checkpoints,
		subscribers: subscribers,
		interval:    DefaultInterval,
		batchSize:   DefaultBatchSize,
		log:         zerolog.Nop(),
	}

	for _, option := range options {
		option(relay)
	}

	return relay
}

type Relay struct {
	feed        es.EventFeed
	checkpoints CheckpointStore
	subscribers []Subscriber
	interval    time.Duration
	batchSize   int
	log         zerolog.Logger
}

// Run polls the feed until the context is cancelled. Failures are logged and
// retried on the next pass; they never propagate to the writers that appended
// the events.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil {
				r.log.Warn().Err(err).Msg("relay pass failed")
			}
		}
	}
}

// Drain delivers every pending event to every subscriber and returns the
// number of deliveries made. A subscriber error stops that subscriber's pass
// without advancing its checkpoint; other subscribers are unaffected.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	delivered := 0

	for _, subscriber := range r.subscribers {
		count, err := r.drainSubscriber(ctx, subscriber)
		delivered += count
		if err != nil {
			r.log.Warn().Err(err).
				Str("subscriber", subscriber.Name()).
				Msg("subscriber delivery halted; will redeliver")
		}
	}

	return delivered, nil
}

func (r *Relay) drainSubscriber(ctx context.Context, subscriber Subscriber) (int, error) {
	delivered := 0

	for {
		position, err := r.checkpoints.Position(ctx, subscriber.Name())
		if err != nil {
			return delivered, err
		}

		events, err := r.feed.ReadAll(ctx, position, r.batchSize)
		if err != nil {
			return delivered, err
		}

		if len(events) == 0 {
			return delivered, nil
		}

		for _, event := range events {
			if err := ctx.Err(); err != nil {
				return delivered, err
			}

			if err := subscriber.Deliver(ctx, event); err != nil {
				return delivered, err
			}

			delivered++
			position = event.Position
		}

		if err := r.checkpoints.SavePosition(ctx, subscriber.Name(), position); err != nil {
			return delivered, err
		}
	}
}
