package es

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countByLabel struct {
	Label string `json:"label"`
}

func TestQueryDispatchRoutesToRegisteredHandler(t *testing.T) {
	var handler QueryHandlerFunction[countByLabel, int] = func(ctx context.Context, query countByLabel) (int, error) {
		assert.Equal(t, "blue", query.Label)
		return 7, nil
	}

	dispatcher := NewQueryDispatcher(QueryHandlers{
		QueryNameOf(countByLabel{}): handler,
	})

	result, err := dispatcher.Dispatch(context.Background(), countByLabel{Label: "blue"})

	assert.Nil(t, err)
	assert.Equal(t, 7, result)
}

func TestQueryDispatchRejectsUnknownQueries(t *testing.T) {
	dispatcher := NewQueryDispatcher(QueryHandlers{})

	result, err := dispatcher.Dispatch(context.Background(), countByLabel{})

	var notFound QueryNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, QueryNameOf(countByLabel{}), notFound.Query)
	assert.Nil(t, result)
}

func TestQueryMiddlewareComposesAtRegistration(t *testing.T) {
	var order []string

	observer := func(label string) QueryMiddleware {
		return func(name QueryName, next QueryHandler) QueryHandler {
			return queryHandlerFunc(func(ctx context.Context, query Query) (any, error) {
				order = append(order, label)
				return next.HandleQuery(ctx, query)
			})
		}
	}

	var handler QueryHandlerFunction[countByLabel, int] = func(ctx context.Context, query countByLabel) (int, error) {
		order = append(order, "handler")
		return 0, nil
	}

	dispatcher := NewQueryDispatcher(
		QueryHandlers{QueryNameOf(countByLabel{}): handler},
		observer("outer"),
		observer("inner"),
	)

	_, err := dispatcher.Dispatch(context.Background(), countByLabel{})

	assert.Nil(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
