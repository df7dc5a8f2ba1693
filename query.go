package es

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type QueryName string
type Query any

func QueryNameOf(query Query) QueryName {
	return QueryName(NameOf(query))
}

// QueryHandler answers a typed query from read models only. It never loads or
// replays an aggregate; read-side answers are eventually consistent.
type QueryHandler interface {
	HandleQuery(ctx context.Context, query Query) (any, error)
}

type QueryHandlerFunction[Q any, R any] func(ctx context.Context, query Q) (R, error)

func (f QueryHandlerFunction[Q, R]) HandleQuery(ctx context.Context, query Query) (any, error) {
	typed, ok := query.(Q)
	if !ok {
		return nil, fmt.Errorf("unexpected query %s", QueryNameOf(query))
	}

	return f(ctx, typed)
}

type QueryHandlers map[QueryName]QueryHandler

type QueryMiddleware func(name QueryName, next QueryHandler) QueryHandler

type queryHandlerFunc func(ctx context.Context, query Query) (any, error)

func (f queryHandlerFunc) HandleQuery(ctx context.Context, query Query) (any, error) {
	return f(ctx, query)
}

// QueryLogging logs every query dispatch with its outcome and duration.
func QueryLogging(log zerolog.Logger) QueryMiddleware {
	return func(name QueryName, next QueryHandler) QueryHandler {
		return queryHandlerFunc(func(ctx context.Context, query Query) (any, error) {
			start := time.Now()
			result, err := next.HandleQuery(ctx, query)

			event := log.Info()
			if err != nil {
				event = log.Warn().Err(err)
			}

			event.
				Str("query", string(name)).
				Dur("duration", time.Since(start)).
				Msg("query dispatched")

			return result, err
		})
	}
}

func NewQueryDispatcher(handlers QueryHandlers, middleware ...QueryMiddleware) *QueryDispatcher {
	routed := make(QueryHandlers, len(handlers))
	for name, handler := range handlers {
		for i := len(middleware) - 1; i >= 0; i-- {
			handler = middleware[i](name, handler)
		}
		routed[name] = handler
	}

	return &QueryDispatcher{handlers: routed}
}

// QueryDispatcher routes queries to the single registered handler for their
// name. The handler table is closed at construction.
type QueryDispatcher struct {
	handlers QueryHandlers
}

func (d *QueryDispatcher) Dispatch(ctx context.Context, query Query) (any, error) {
	name := QueryNameOf(query)

	handler := d.handlers[name]
	if handler == nil {
		return nil, QueryNotFound(name)
	}

	return handler.HandleQuery(ctx, query)
}

func QueryNotFound(query QueryName) QueryNotFoundError {
	return QueryNotFoundError{Query: query}
}

type QueryNotFoundError struct {
	Query QueryName
}

func (e QueryNotFoundError) Error() string {
	return fmt.Sprintf("unknown query: %s", e.Query)
}
