package orders

import we "github.com/ebbtide-io/ebb-events-go"

// initializers
func createdInitializer() we.Initializer[Order] {
	var initializer we.InitializerFunction[Order, OrderCreated] = func(evt *OrderCreated) (*Order, error) {
		return &Order{
			Status: StatusPending,
			Amount: evt.Amount,
		}, nil
	}

	return initializer
}

// reducers
func created() we.Reducer[Order] {
	var reducer we.ReducerFunction[Order, OrderCreated] = func(order *Order, evt *OrderCreated) error {
		order.Status = StatusPending
		order.Amount = evt.Amount
		return nil
	}

	return reducer
}

func confirmed() we.Reducer[Order] {
	var reducer we.ReducerFunction[Order, OrderConfirmed] = func(order *Order, evt *OrderConfirmed) error {
		order.Status = StatusConfirmed
		return nil
	}

	return reducer
}

func cancelled() we.Reducer[Order] {
	var reducer we.ReducerFunction[Order, OrderCancelled] = func(order *Order, evt *OrderCancelled) error {
		order.Status = StatusCancelled
		order.Reason = evt.Reason
		return nil
	}

	return reducer
}

func delivered() we.Reducer[Order] {
	var reducer we.ReducerFunction[Order, OrderDelivered] = func(order *Order, evt *OrderDelivered) error {
		order.Status = StatusDelivered
		return nil
	}

	return reducer
}
