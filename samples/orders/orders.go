// Package orders is a worked example of an event-sourced aggregate with a
// projected read model, in the shape callers are expected to follow.
package orders

import es "github.com/ebbtide-io/ebb-events-go"

const AggregateType = "order"

type Status string

const (
	StatusPending   = Status("PENDING")
	StatusConfirmed = Status("CONFIRMED")
	StatusCancelled = Status("CANCELLED")
	StatusDelivered = Status("DELIVERED")
)

type Order struct {
	Status Status `json:"status"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

func (Order) EntityType() es.EntityType {
	return es.EntityType(AggregateType)
}

func OrderId(key string) es.AggregateId {
	return es.AggregateId{Type: AggregateType, Key: key}
}
