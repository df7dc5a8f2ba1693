package orders

type OrderCreated struct {
	Amount int64 `json:"amount"`
}

type OrderConfirmed struct{}

type OrderCancelled struct {
	Reason string `json:"reason"`
}

type OrderDelivered struct{}
