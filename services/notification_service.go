package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/catalog"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/models"
	"github.com/longle289/TrustAustralia/repository"
	"github.com/longle289/TrustAustralia/sender"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	customerTemplate   = "order_confirmation.html"
	operatorTemplate   = "operator_new_order.html"
	paidFailedTemplate = "operator_paid_failed.html"

	maxSendAttempts = 3
)

// OrderConfirmation is what the dispatcher needs to announce a paid order.
type OrderConfirmation struct {
	OrderID       uuid.UUID
	CustomerEmail string
	CustomerName  string
	ProductName   string
	ProductType   models.ProductType
	Amount        int64
	OrderRef      string
}

// ConfirmationNotifier is implemented by NotificationService.
type ConfirmationNotifier interface {
	SendOrderConfirmation(ctx context.Context, oc OrderConfirmation) error
	SendPaidFailedAlert(ctx context.Context, oc OrderConfirmation) error
}

type confirmationView struct {
	SiteName         string
	SupportEmail     string
	OrderID          string
	OrderRef         string
	CustomerName     string
	CustomerEmail    string
	ProductName      string
	Amount           string
	Description      string
	NextSteps        []string
	ManualProcessing bool
}

type NotificationService struct {
	repo       repository.NotificationRepository
	sender     sender.EmailSender
	operatorTo string
	templates  *template.Template
	logger     *zap.Logger
	backoff    func(attempt int) time.Duration
}

func NewNotificationService(
	repo repository.NotificationRepository,
	emailSender sender.EmailSender,
	operatorTo string,
	logger *zap.Logger,
) (*NotificationService, error) {
	tmpls, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	if strings.TrimSpace(operatorTo) == "" {
		operatorTo = catalog.SupportEmail
	}
	return &NotificationService{
		repo:       repo,
		sender:     emailSender,
		operatorTo: operatorTo,
		templates:  tmpls,
		logger:     logger,
		backoff:    func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
	}, nil
}

// SendOrderConfirmation emails the customer and then the operator mailbox.
// Only a customer failure is returned; the operator copy is best-effort.
func (s *NotificationService) SendOrderConfirmation(ctx context.Context, oc OrderConfirmation) error {
	if strings.TrimSpace(oc.CustomerEmail) == "" {
		return apperrors.WithMessage(apperrors.ErrNotificationFailed, "No customer email for order")
	}
	view := s.view(oc)

	body, err := s.render(customerTemplate, view)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotificationFailed, err)
	}
	subject := fmt.Sprintf("Order Confirmation - %s", oc.ProductName)
	if err := s.sendWithRetry(ctx, models.TypeOrderConfirmation, oc.CustomerEmail, subject, body, oc.OrderID); err != nil {
		return apperrors.Wrap(apperrors.ErrNotificationFailed, err)
	}

	opBody, err := s.render(operatorTemplate, view)
	if err != nil {
		s.logger.Error("failed to render operator email", zap.String("order_id", oc.OrderID.String()), zap.Error(err))
		return nil
	}
	opSubject := fmt.Sprintf("New Order: %s - %s", oc.ProductName, oc.OrderRef)
	if err := s.sendWithRetry(ctx, models.TypeOperatorNewOrder, s.operatorTo, opSubject, opBody, oc.OrderID); err != nil {
		s.logger.Error("operator notification failed", zap.String("order_id", oc.OrderID.String()), zap.Error(err))
	}
	return nil
}

// SendPaidFailedAlert tells the operator mailbox that a payment succeeded for
// an order already marked FAILED. The customer is not emailed.
func (s *NotificationService) SendPaidFailedAlert(ctx context.Context, oc OrderConfirmation) error {
	body, err := s.render(paidFailedTemplate, s.view(oc))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotificationFailed, err)
	}
	subject := fmt.Sprintf("Action Required: paid order is FAILED - %s", oc.OrderRef)
	if err := s.sendWithRetry(ctx, models.TypeOperatorPaidFailed, s.operatorTo, subject, body, oc.OrderID); err != nil {
		return apperrors.Wrap(apperrors.ErrNotificationFailed, err)
	}
	return nil
}

func (s *NotificationService) view(oc OrderConfirmation) confirmationView {
	v := confirmationView{
		SiteName:      catalog.SiteName,
		SupportEmail:  catalog.SupportEmail,
		OrderID:       oc.OrderID.String(),
		OrderRef:      oc.OrderRef,
		CustomerName:  oc.CustomerName,
		CustomerEmail: oc.CustomerEmail,
		ProductName:   oc.ProductName,
		Amount:        catalog.FormatAmount(oc.Amount),
		Description:   "Your order has been received.",
	}
	if v.CustomerName == "" {
		v.CustomerName = "Customer"
	}
	if p, ok := catalog.ByType(oc.ProductType); ok {
		v.Description = p.Confirmation
		v.NextSteps = p.NextSteps
		v.ManualProcessing = p.ManualProcessing
	}
	return v
}

func (s *NotificationService) render(name string, data confirmationView) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("template render failed: %w", err)
	}
	return buf.String(), nil
}

func (s *NotificationService) sendWithRetry(
	ctx context.Context,
	notificationType, to, subject, body string,
	orderID uuid.UUID,
) error {
	var lastErr error
	var messageID string
	attempts := 0

	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(s.backoff(attempt)):
			}
			if ctx.Err() != nil {
				break
			}
		}

		attempts++
		var result sender.SendResult
		result, lastErr = s.sender.SendEmail(ctx, to, subject, body)
		if lastErr == nil {
			messageID = result.MessageID
			break
		}

		s.logger.Warn("send attempt failed",
			zap.String("type", notificationType),
			zap.String("order_id", orderID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	status := models.NotificationSent
	errMsg := ""
	if lastErr != nil {
		status = models.NotificationFailed
		errMsg = lastErr.Error()
	}

	id := orderID
	logEntry := &models.NotificationLog{
		OrderID:    &id,
		Recipient:  to,
		Type:       notificationType,
		Channel:    models.ChannelEmail,
		Status:     status,
		MessageID:  messageID,
		Error:      errMsg,
		RetryCount: attempts - 1,
	}

	s.logger.Info("notification processed",
		zap.String("type", notificationType),
		zap.String("order_id", orderID.String()),
		zap.String("status", status),
		zap.String("message_id", messageID),
	)

	// the send outcome must be recorded even if the caller's context is gone
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.SaveLog(saveCtx, logEntry); err != nil {
		s.logger.Error("failed to save notification log", zap.Error(err))
	}
	return lastErr
}
