package orders

import (
	"context"

	we "github.com/ebbtide-io/ebb-events-go"
)

// commands
func create() we.CommandHandler[Order] {
	var handler we.CommandHandlerFunction[Order, CreateOrder] = func(ctx context.Context, cmd CreateOrder, state we.Entity[Order], record we.EventRecorder) error {
		if state.Initialized() {
			return we.Invalid("order already exists")
		}

		if cmd.Amount <= 0 {
			return we.Invalid("order amount must be positive")
		}

		return record(ctx, OrderCreated{Amount: cmd.Amount})
	}

	return handler
}

func confirm() we.CommandHandler[Order] {
	var handler we.CommandHandlerFunction[Order, ConfirmOrder] = func(ctx context.Context, cmd ConfirmOrder, state we.Entity[Order], record we.EventRecorder) error {
		if !state.Initialized() {
			return we.AggregateNotFound(state.Aggregate)
		}

		if state.State.Status == StatusConfirmed {
			return nil
		}

		if state.State.Status != StatusPending {
			return we.Invalid("only pending orders can be confirmed")
		}

		return record(ctx, OrderConfirmed{})
	}

	return handler
}

func cancel() we.CommandHandler[Order] {
	var handler we.CommandHandlerFunction[Order, CancelOrder] = func(ctx context.Context, cmd CancelOrder, state we.Entity[Order], record we.EventRecorder) error {
		if !state.Initialized() {
			return we.AggregateNotFound(state.Aggregate)
		}

		switch state.State.Status {
		case StatusCancelled:
			return nil
		case StatusDelivered:
			return we.Invalid("delivered orders cannot be cancelled")
		}

		return record(ctx, OrderCancelled{Reason: cmd.Reason})
	}

	return handler
}

func deliver() we.CommandHandler[Order] {
	var handler we.CommandHandlerFunction[Order, DeliverOrder] = func(ctx context.Context, cmd DeliverOrder, state we.Entity[Order], record we.EventRecorder) error {
		if !state.Initialized() {
			return we.AggregateNotFound(state.Aggregate)
		}

		if state.State.Status != StatusConfirmed {
			return we.Invalid("only confirmed orders can be delivered")
		}

		return record(ctx, OrderDelivered{})
	}

	return handler
}
