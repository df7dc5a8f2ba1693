package orders

import (
	we "github.com/ebbtide-io/ebb-events-go"
)

func CreateOrderDescriptor() we.ServiceDescriptor[Order] {
	initializers := map[we.EventType]func() we.Initializer[Order]{
		we.EventTypeOf(OrderCreated{}): createdInitializer,
	}

	reducers := map[we.EventType]func() we.Reducer[Order]{
		we.EventTypeOf(OrderCreated{}):   created,
		we.EventTypeOf(OrderConfirmed{}): confirmed,
		we.EventTypeOf(OrderCancelled{}): cancelled,
		we.EventTypeOf(OrderDelivered{}): delivered,
	}

	handlers := map[we.CommandName]func() we.CommandHandler[Order]{
		we.CommandNameOf(CreateOrder{}):  create,
		we.CommandNameOf(ConfirmOrder{}): confirm,
		we.CommandNameOf(CancelOrder{}):  cancel,
		we.CommandNameOf(DeliverOrder{}): deliver,
	}

	return we.ServiceDescriptor[Order]{
		Handlers:     handlers,
		Initializers: initializers,
		Reducers:     reducers,
	}
}

func CreateOrderService(store we.EventStore) we.EntityService[Order] {
	return we.CreateService(store, CreateOrderDescriptor())
}

func CreateConfiguredOrderService(store we.EventStore, config we.ServiceConfig[Order]) we.EntityService[Order] {
	return we.CreateConfiguredService(store, CreateOrderDescriptor(), config)
}
