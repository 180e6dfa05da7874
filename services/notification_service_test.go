package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/models"
	"github.com/longle289/TrustAustralia/sender"
	"github.com/longle289/TrustAustralia/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newNotificationService(t *testing.T, s *flakySender, logs *memNotificationLogs) *services.NotificationService {
	t.Helper()
	svc, err := services.NewNotificationService(logs, s, "ops@example.com", zap.NewNop())
	require.NoError(t, err)
	svc.SetBackoff(func(int) time.Duration { return 0 })
	return svc
}

func confirmationFor(pt models.ProductType, name string) services.OrderConfirmation {
	return services.OrderConfirmation{
		OrderID:       uuid.New(),
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Jane Doe",
		ProductName:   name,
		ProductType:   pt,
		Amount:        16500,
		OrderRef:      "CS_TEST_ABC123",
	}
}

func TestSendOrderConfirmation_CustomerThenOperator(t *testing.T) {
	s := &flakySender{}
	logs := &memNotificationLogs{}
	svc := newNotificationService(t, s, logs)

	oc := confirmationFor(models.ProductDiscretionary, "Discretionary Trust Deed")
	require.NoError(t, svc.SendOrderConfirmation(context.Background(), oc))

	require.Len(t, s.sent, 2)
	assert.Equal(t, "buyer@example.com", s.sent[0].To)
	assert.Equal(t, "Order Confirmation - Discretionary Trust Deed", s.sent[0].Subject)
	assert.Contains(t, s.sent[0].Body, "Jane Doe")
	assert.Contains(t, s.sent[0].Body, "CS_TEST_ABC123")
	assert.Contains(t, s.sent[0].Body, "$165.00 AUD")
	assert.Contains(t, s.sent[0].Body, "Your Discretionary Trust Deed is ready for download.")

	assert.Equal(t, "ops@example.com", s.sent[1].To)
	assert.Equal(t, "New Order: Discretionary Trust Deed - CS_TEST_ABC123", s.sent[1].Subject)
	assert.Contains(t, s.sent[1].Body, "no action required")

	require.Len(t, logs.logs, 2)
	assert.Equal(t, models.TypeOrderConfirmation, logs.logs[0].Type)
	assert.Equal(t, models.NotificationSent, logs.logs[0].Status)
	assert.Equal(t, "msg-buyer@example.com", logs.logs[0].MessageID)
	assert.Equal(t, oc.OrderID, *logs.logs[0].OrderID)
	assert.Equal(t, models.TypeOperatorNewOrder, logs.logs[1].Type)
}

func TestSendOrderConfirmation_ManualProcessingFlagsOperator(t *testing.T) {
	s := &flakySender{}
	svc := newNotificationService(t, s, &memNotificationLogs{})

	oc := confirmationFor(models.ProductCompanyRegistration, "Company Registration")
	require.NoError(t, svc.SendOrderConfirmation(context.Background(), oc))

	require.Len(t, s.sent, 2)
	assert.Contains(t, s.sent[1].Body, "Action Required:")
}

func TestSendOrderConfirmation_RetriesTransientFailures(t *testing.T) {
	s := &flakySender{failures: 2}
	logs := &memNotificationLogs{}
	svc := newNotificationService(t, s, logs)

	require.NoError(t, svc.SendOrderConfirmation(context.Background(), confirmationFor(models.ProductUnit, "Unit Trust Deed")))

	require.Len(t, s.sent, 2)
	require.Len(t, logs.logs, 2)
	assert.Equal(t, models.NotificationSent, logs.logs[0].Status)
	assert.Equal(t, 2, logs.logs[0].RetryCount)
	assert.Equal(t, 0, logs.logs[1].RetryCount)
}

func TestSendOrderConfirmation_CustomerFailureSkipsOperator(t *testing.T) {
	s := &flakySender{failures: 3}
	logs := &memNotificationLogs{}
	svc := newNotificationService(t, s, logs)

	err := svc.SendOrderConfirmation(context.Background(), confirmationFor(models.ProductUnit, "Unit Trust Deed"))
	assert.ErrorIs(t, err, apperrors.ErrNotificationFailed)

	assert.Empty(t, s.sent)
	require.Len(t, logs.logs, 1)
	assert.Equal(t, models.NotificationFailed, logs.logs[0].Status)
	assert.Equal(t, 2, logs.logs[0].RetryCount)
	assert.Contains(t, logs.logs[0].Error, "temporary failure")
}

// failAfter lets okSends emails through and fails every later one.
type failAfter struct {
	*flakySender
	okSends int
}

func (f *failAfter) SendEmail(ctx context.Context, to, subject, body string) (sender.SendResult, error) {
	f.mu.Lock()
	if f.okSends == 0 {
		f.failures = 1
	} else {
		f.okSends--
	}
	f.mu.Unlock()
	return f.flakySender.SendEmail(ctx, to, subject, body)
}

func TestSendOrderConfirmation_OperatorFailureIsNotReturned(t *testing.T) {
	s := &flakySender{}
	logs := &memNotificationLogs{}
	svc, err := services.NewNotificationService(logs, &failAfter{flakySender: s, okSends: 1}, "ops@example.com", zap.NewNop())
	require.NoError(t, err)
	svc.SetBackoff(func(int) time.Duration { return 0 })

	oc := confirmationFor(models.ProductDiscretionary, "Discretionary Trust Deed")
	require.NoError(t, svc.SendOrderConfirmation(context.Background(), oc))

	require.Len(t, s.sent, 1)
	assert.Equal(t, "buyer@example.com", s.sent[0].To)
	require.Len(t, logs.logs, 2)
	assert.Equal(t, models.NotificationFailed, logs.logs[1].Status)
}

func TestSendOrderConfirmation_RequiresEmail(t *testing.T) {
	s := &flakySender{}
	svc := newNotificationService(t, s, &memNotificationLogs{})

	oc := confirmationFor(models.ProductDiscretionary, "Discretionary Trust Deed")
	oc.CustomerEmail = " "
	err := svc.SendOrderConfirmation(context.Background(), oc)
	assert.ErrorIs(t, err, apperrors.ErrNotificationFailed)
	assert.Empty(t, s.sent)
}

func TestSendOrderConfirmation_DefaultsCustomerName(t *testing.T) {
	s := &flakySender{}
	svc := newNotificationService(t, s, &memNotificationLogs{})

	oc := confirmationFor(models.ProductDiscretionary, "Discretionary Trust Deed")
	oc.CustomerName = ""
	require.NoError(t, svc.SendOrderConfirmation(context.Background(), oc))
	assert.Contains(t, s.sent[0].Body, "Customer")
}

func TestSendPaidFailedAlert_GoesToOperatorOnly(t *testing.T) {
	s := &flakySender{}
	logs := &memNotificationLogs{}
	svc := newNotificationService(t, s, logs)

	oc := confirmationFor(models.ProductUnit, "Unit Trust Deed")
	require.NoError(t, svc.SendPaidFailedAlert(context.Background(), oc))

	require.Len(t, s.sent, 1)
	assert.Equal(t, "ops@example.com", s.sent[0].To)
	assert.Equal(t, "Action Required: paid order is FAILED - CS_TEST_ABC123", s.sent[0].Subject)
	assert.Contains(t, s.sent[0].Body, "buyer@example.com")
	assert.Contains(t, s.sent[0].Body, "$165.00 AUD")

	require.Len(t, logs.logs, 1)
	assert.Equal(t, models.TypeOperatorPaidFailed, logs.logs[0].Type)
	assert.Equal(t, models.NotificationSent, logs.logs[0].Status)
}

func TestSendPaidFailedAlert_ReturnsSendFailure(t *testing.T) {
	s := &flakySender{failures: 10}
	logs := &memNotificationLogs{}
	svc := newNotificationService(t, s, logs)

	err := svc.SendPaidFailedAlert(context.Background(), confirmationFor(models.ProductUnit, "Unit Trust Deed"))
	assert.ErrorIs(t, err, apperrors.ErrNotificationFailed)
	require.Len(t, logs.logs, 1)
	assert.Equal(t, models.NotificationFailed, logs.logs[0].Status)
}
