package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChannelEmail = "email"

	NotificationSent   = "sent"
	NotificationFailed = "failed"

	TypeOrderConfirmation  = "order_confirmation"
	TypeOperatorNewOrder   = "operator_new_order"
	TypeOperatorPaidFailed = "operator_paid_failed"
)

type NotificationLog struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID    *uuid.UUID `json:"order_id" gorm:"type:uuid;index"`
	Recipient  string     `json:"recipient"`
	Type       string     `json:"type"`
	Channel    string     `json:"channel"`
	Status     string     `json:"status"`
	MessageID  string     `json:"message_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retry_count"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
}
