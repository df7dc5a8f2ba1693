package orders

import (
	"context"
	"sync"

	es "github.com/ebbtide-io/ebb-events-go"
	"github.com/ebbtide-io/ebb-events-go/projection"
)

const ProjectionName = "order-summaries"

// OrderSummary is the denormalized read side of one order. Sequence records
// the event that produced this row; projection updates overwrite the whole
// row, so a redelivered event writes the same summary it wrote the first
// time.
type OrderSummary struct {
	Key      string      `json:"key"`
	Status   Status      `json:"status"`
	Amount   int64       `json:"amount"`
	Reason   string      `json:"reason,omitempty"`
	Sequence es.Sequence `json:"sequence"`
	Updated  es.Timestamp `json:"updated"`
}

type SummaryStore interface {
	Upsert(ctx context.Context, summary OrderSummary) error
	Get(ctx context.Context, key string) (OrderSummary, bool, error)
	ByStatus(ctx context.Context, status Status) ([]OrderSummary, error)
}

func NewSummaryProjector(summaries SummaryStore, watermarks projection.WatermarkStore, deadLetters projection.DeadLetterStore, options ...projection.Option) *projection.Projector {
	handlers := projection.Handlers{
		key(OrderCreated{}): summaryHandler(summaries, func(summary *OrderSummary, evt *OrderCreated) {
			summary.Status = StatusPending
			summary.Amount = evt.Amount
		}),
		key(OrderConfirmed{}): summaryHandler(summaries, func(summary *OrderSummary, evt *OrderConfirmed) {
			summary.Status = StatusConfirmed
		}),
		key(OrderCancelled{}): summaryHandler(summaries, func(summary *OrderSummary, evt *OrderCancelled) {
			summary.Status = StatusCancelled
			summary.Reason = evt.Reason
		}),
		key(OrderDelivered{}): summaryHandler(summaries, func(summary *OrderSummary, evt *OrderDelivered) {
			summary.Status = StatusDelivered
		}),
	}

	return projection.NewProjector(ProjectionName, handlers, watermarks, deadLetters, options...)
}

func key(event es.DomainEvent) projection.HandlerKey {
	return projection.HandlerKey{
		AggregateType: AggregateType,
		EventType:     es.EventTypeOf(event),
	}
}

func summaryHandler[E any](summaries SummaryStore, update func(summary *OrderSummary, evt *E)) projection.Handler {
	var handler projection.EventHandlerFunction[E] = func(ctx context.Context, recorded es.RecordedEvent, evt *E) error {
		summary, _, err := summaries.Get(ctx, recorded.AggregateId.Key)
		if err != nil {
			return err
		}

		summary.Key = recorded.AggregateId.Key
		summary.Sequence = recorded.Sequence
		summary.Updated = recorded.Timestamp
		update(&summary, evt)

		return summaries.Upsert(ctx, summary)
	}

	return handler
}

func NewMemorySummaryStore() *MemorySummaryStore {
	return &MemorySummaryStore{
		summaries: make(map[string]OrderSummary),
	}
}

type MemorySummaryStore struct {
	lk        sync.RWMutex
	summaries map[string]OrderSummary
}

func (s *MemorySummaryStore) Upsert(ctx context.Context, summary OrderSummary) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	s.summaries[summary.Key] = summary
	return nil
}

func (s *MemorySummaryStore) Get(ctx context.Context, key string) (OrderSummary, bool, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	summary, found := s.summaries[key]
	return summary, found, nil
}

func (s *MemorySummaryStore) ByStatus(ctx context.Context, status Status) ([]OrderSummary, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	var matched []OrderSummary
	for _, summary := range s.summaries {
		if summary.Status == status {
			matched = append(matched, summary)
		}
	}

	return matched, nil
}
