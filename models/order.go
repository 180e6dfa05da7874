package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProductType string

const (
	ProductDiscretionary       ProductType = "DISCRETIONARY"
	ProductUnit                ProductType = "UNIT"
	ProductDiscretionaryBundle ProductType = "DISCRETIONARY_BUNDLE"
	ProductCompanyRegistration ProductType = "COMPANY_REGISTRATION"
	ProductSMSFBundle          ProductType = "SMSF_BUNDLE"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusFailed     OrderStatus = "FAILED"
)

// OpenStatuses are the statuses an order may still leave.
var OpenStatuses = []OrderStatus{StatusPending, StatusProcessing}

const CurrencyAUD = "aud"

type Order struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID             *uuid.UUID     `gorm:"type:uuid;index" json:"userId"`
	Email              string         `gorm:"type:varchar(320);index" json:"email"`
	ProductType        ProductType    `gorm:"type:varchar(40);not null" json:"productType"`
	ProductName        string         `gorm:"not null" json:"productName"`
	Amount             int64          `gorm:"not null" json:"amount"`
	Currency           string         `gorm:"type:varchar(3);not null;default:'aud'" json:"currency"`
	FormData           datatypes.JSON `gorm:"type:jsonb;not null" json:"formData"`
	Status             OrderStatus    `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	StripeSessionID    *string        `gorm:"uniqueIndex" json:"stripeSessionId"`
	StripePaymentID    *string        `json:"stripePaymentId"`
	PDFGenerated       bool           `gorm:"not null;default:false" json:"pdfGenerated"`
	ConfirmationSentAt *time.Time     `json:"confirmationSentAt,omitempty"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	FailedAt           *time.Time     `json:"failedAt,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// SessionID returns the checkout session reference or "" when none is attached yet.
func (o *Order) SessionID() string {
	if o.StripeSessionID == nil {
		return ""
	}
	return *o.StripeSessionID
}

// Reference is the short, customer-facing order label printed in emails.
func (o *Order) Reference() string {
	return OrderReference(o.SessionID(), o.ID)
}
