// Package projection keeps denormalized read models eventually consistent
// with the event log. Handlers are selected by a closed (aggregate type,
// event type) table, and redeliveries are absorbed by a per-aggregate
// watermark, so projecting the same event twice leaves the read model
// unchanged.
package projection

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	es "github.com/ebbtide-io/ebb-events-go"
)

type HandlerKey struct {
	AggregateType string
	EventType     es.EventType
}

// Handler applies one recorded event to a read model. Updates must be keyed
// so that reapplying the same event is a no-op or an overwrite, never a
// double count.
type Handler interface {
	Apply(ctx context.Context, event es.RecordedEvent) error
}

type EventHandlerFunction[E any] func(ctx context.Context, recorded es.RecordedEvent, event *E) error

func (f EventHandlerFunction[E]) Apply(ctx context.Context, recorded es.RecordedEvent) error {
	var event E
	if err := es.DecodeEvent(&recorded, &event); err != nil {
		return err
	}

	return f(ctx, recorded, &event)
}

type Handlers map[HandlerKey]Handler

// WatermarkStore tracks the highest sequence each projection has applied per
// aggregate. Events at or below the watermark are discarded as redeliveries.
type WatermarkStore interface {
	Watermark(ctx context.Context, projection string, id es.AggregateId) (es.Sequence, error)
	Advance(ctx context.Context, projection string, id es.AggregateId, sequence es.Sequence) error
}

const (
	DefaultAttempts = uint(5)
	DefaultDelay    = 100 * time.Millisecond
)

type Option func(projector *Projector)

func WithAttempts(attempts uint) Option {
	return func(projector *Projector) {
		projector.attempts = attempts
	}
}

func WithDelay(delay time.Duration) Option {
	return func(projector *Projector) {
		projector.delay = delay
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(projector *Projector) {
		projector.log = log
	}
}

func NewProjector(name string, handlers Handlers, watermarks WatermarkStore, deadLetters DeadLetterStore, options ...Option) *Projector {
	projector := &Projector{
		name:        name,
		handlers:    handlers,
		watermarks:  watermarks,
		deadLetters: deadLetters,
		attempts:    DefaultAttempts,
		delay:       DefaultDelay,
		log:         zerolog.Nop(),
	}

	for _, option := range options {
		option(projector)
	}

	return projector
}

// Projector is a relay subscriber that folds events into read models. A
// handler that keeps failing after bounded backoff is dead-lettered and the
// projector moves on, so one stuck aggregate never blocks the rest of the
// feed.
type Projector struct {
	name        string
	handlers    Handlers
	watermarks  WatermarkStore
	deadLetters DeadLetterStore
	attempts    uint
	delay       time.Duration
	log         zerolog.Logger
}

func (p *Projector) Name() string {
	return p.name
}

func (p *Projector) Deliver(ctx context.Context, event es.RecordedEvent) error {
	handler := p.handlers[HandlerKey{
		AggregateType: event.AggregateId.Type,
		EventType:     event.EventType,
	}]
	if handler == nil {
		return nil
	}

	watermark, err := p.watermarks.Watermark(ctx, p.name, event.AggregateId)
	if err != nil {
		return err
	}

	if event.Sequence <= watermark {
		return nil
	}

	err = retry.Do(
		func() error {
			return handler.Apply(ctx, event)
		},
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
	)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Error().Err(err).
			Str("projection", p.name).
			Str("aggregate", event.AggregateId.Encode().String()).
			Str("sequence", event.Sequence.String()).
			Msg("projection handler exhausted retries; dead lettering")

		if dlErr := p.deadLetters.Record(ctx, NewDeadLetter(p.name, event, p.attempts, err)); dlErr != nil {
			return dlErr
		}
	}

	return p.watermarks.Advance(ctx, p.name, event.AggregateId, event.Sequence)
}
