package orders

import (
	"context"

	we "github.com/ebbtide-io/ebb-events-go"
)

type GetOrderSummary struct {
	Key string `json:"key"`
}

type OrdersByStatus struct {
	Status Status `json:"status"`
}

// CreateQueryDispatcher routes the order queries to their read-model
// handlers. Answers come from the projected summaries only; a query never
// replays the aggregate.
func CreateQueryDispatcher(summaries SummaryStore, middleware ...we.QueryMiddleware) *we.QueryDispatcher {
	var get we.QueryHandlerFunction[GetOrderSummary, OrderSummary] = func(ctx context.Context, query GetOrderSummary) (OrderSummary, error) {
		summary, found, err := summaries.Get(ctx, query.Key)
		if err != nil {
			return OrderSummary{}, err
		}

		if !found {
			return OrderSummary{}, we.ErrNotFound
		}

		return summary, nil
	}

	var byStatus we.QueryHandlerFunction[OrdersByStatus, []OrderSummary] = func(ctx context.Context, query OrdersByStatus) ([]OrderSummary, error) {
		return summaries.ByStatus(ctx, query.Status)
	}

	handlers := we.QueryHandlers{
		we.QueryNameOf(GetOrderSummary{}): get,
		we.QueryNameOf(OrdersByStatus{}):  byStatus,
	}

	return we.NewQueryDispatcher(handlers, middleware...)
}
