package orders

type CreateOrder struct {
	Amount int64 `json:"amount"`
}

type ConfirmOrder struct{}

type CancelOrder struct {
	Reason string `json:"reason"`
}

type DeliverOrder struct{}
