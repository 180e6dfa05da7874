package models

import (
	"strings"

	"github.com/google/uuid"
)

const referenceLength = 14

// OrderReference derives the label from the checkout session id, falling back
// to the order id for orders that never reached checkout.
func OrderReference(sessionID string, orderID uuid.UUID) string {
	src := sessionID
	if src == "" {
		src = strings.ReplaceAll(orderID.String(), "-", "")
	}
	if len(src) > referenceLength {
		src = src[:referenceLength]
	}
	return strings.ToUpper(src)
}
