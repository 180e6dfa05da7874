package models

import "time"

const (
	EventOrderCompleted = "order_completed"
	EventOrderFailed    = "order_failed"

	// a paid session arrived for an order already marked FAILED
	EventOrderPaidAfterFailure = "order_paid_after_failure"
)

type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id,omitempty"`
	ProductType string    `json:"product_type"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	SessionID   string    `json:"session_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
