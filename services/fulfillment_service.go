package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/catalog"
	"github.com/longle289/TrustAustralia/common/logger"
	"github.com/longle289/TrustAustralia/models"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"github.com/longle289/TrustAustralia/repository"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrOrderUnrecoverable means a paid session matches no order and its
// metadata is not enough to rebuild one.
var ErrOrderUnrecoverable = errors.New("order cannot be recovered from session metadata")

// Confirmation sources, used in logs.
const (
	SourceWebhook    = "webhook"
	SourceReturnPath = "return_path"
	SourceReconcile  = "reconcile"
)

// PaymentConfirmation is a paid checkout session as reported by either
// confirmation path.
type PaymentConfirmation struct {
	SessionID       string
	PaymentIntentID string
	PayerEmail      string
	PayerName       string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
	Source          string
}

func confirmationFromSession(sess *stripe.CheckoutSession, source string) PaymentConfirmation {
	pc := PaymentConfirmation{
		SessionID:   sess.ID,
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
		Metadata:    sess.Metadata,
		Source:      source,
	}
	if sess.PaymentIntent != nil {
		pc.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.CustomerDetails != nil {
		pc.PayerEmail = sess.CustomerDetails.Email
		pc.PayerName = sess.CustomerDetails.Name
	}
	if pc.PayerEmail == "" {
		pc.PayerEmail = sess.CustomerEmail
	}
	return pc
}

type CompletionResult struct {
	Order *models.Order
	// Transitioned is true only for the caller that moved the order to COMPLETED.
	Transitioned bool
	Recovered    bool
	Linked       bool
	Notified     bool
	// PaidAfterFailure is set when the paid session belongs to a FAILED order.
	PaidAfterFailure bool
}

// FulfillmentService owns the one completion operation every confirmation
// path goes through. Running it any number of times, concurrently or not,
// leaves one COMPLETED order and at most one confirmation email.
type FulfillmentService struct {
	orders   repository.OrderRepository
	users    repository.UserRepository
	notifier ConfirmationNotifier
	events   EventPublisher
	metrics  MetricsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewFulfillmentService(
	orders repository.OrderRepository,
	users repository.UserRepository,
	notifier ConfirmationNotifier,
	events EventPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		orders:   orders,
		users:    users,
		notifier: notifier,
		events:   events,
		metrics:  metricsOrNop(metrics),
		logger:   logger,
		now:      time.Now,
	}
}

// Complete records the payment and runs the follow-up work. Only storage
// errors are returned; linking and notification problems are logged.
func (s *FulfillmentService) Complete(ctx context.Context, pc PaymentConfirmation) (*CompletionResult, error) {
	if strings.TrimSpace(pc.SessionID) == "" {
		return nil, errors.New("payment confirmation without session id")
	}
	log := logger.For(ctx, s.logger).With(
		zap.String("session_id", pc.SessionID),
		zap.String("source", pc.Source),
	)

	transitioned, err := s.orders.Complete(ctx, pc.SessionID, pc.PaymentIntentID, pc.PayerEmail)
	if err != nil {
		return nil, fmt.Errorf("complete order: %w", err)
	}
	res := &CompletionResult{Transitioned: transitioned}

	order, err := s.orders.FindBySessionID(ctx, pc.SessionID)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		order, res.Transitioned, err = s.recoverOrder(ctx, pc, log)
		if err != nil {
			return nil, err
		}
		res.Recovered = true
	case err != nil:
		return nil, fmt.Errorf("load order: %w", err)
	}
	res.Order = order

	if order.Status != models.StatusCompleted {
		log.Error("payment confirmed for order that cannot complete",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)),
		)
		if order.Status == models.StatusFailed {
			res.PaidAfterFailure = true
			res.Notified = s.escalatePaidFailure(ctx, order, pc, log)
		}
		return res, nil
	}

	if res.Transitioned {
		log.Info("order completed",
			zap.String("order_id", order.ID.String()),
			zap.Bool("recovered", res.Recovered),
		)
		s.announce(ctx, models.EventOrderCompleted, order, log)
		recordCount(s.metrics, awspkg.MetricOrdersCompleted, map[string]string{"ProductType": string(order.ProductType)})
	}

	res.Linked = s.linkOwner(ctx, order, log)
	res.Notified = s.notifyOnce(ctx, order, pc, log)
	return res, nil
}

// FailOrder marks an open order FAILED. It reports whether this call did it.
func (s *FulfillmentService) FailOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	failed, err := s.orders.FailByID(ctx, orderID)
	if err != nil || !failed {
		return false, err
	}
	log := logger.For(ctx, s.logger).With(zap.String("order_id", orderID.String()))
	log.Info("order failed")

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		log.Warn("failed order could not be reloaded", zap.Error(err))
		return true, nil
	}
	s.announce(ctx, models.EventOrderFailed, order, log)
	recordCount(s.metrics, awspkg.MetricOrdersFailed, map[string]string{"ProductType": string(order.ProductType)})
	return true, nil
}

// escalatePaidFailure raises a paid session on a FAILED order with the operator.
// The status stays FAILED; the confirmation claim makes the alert fire once.
func (s *FulfillmentService) escalatePaidFailure(ctx context.Context, order *models.Order, pc PaymentConfirmation, log *zap.Logger) bool {
	claimed, err := s.orders.ClaimConfirmation(ctx, order.ID)
	if err != nil {
		log.Error("failed to claim paid-failure alert", zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}

	s.announce(ctx, models.EventOrderPaidAfterFailure, order, log)
	recordCount(s.metrics, awspkg.MetricPaidAfterFailure, map[string]string{"ProductType": string(order.ProductType)})
	if s.notifier == nil {
		return false
	}

	email := strings.TrimSpace(order.Email)
	if email == "" {
		email = strings.TrimSpace(pc.PayerEmail)
	}
	err = s.notifier.SendPaidFailedAlert(ctx, OrderConfirmation{
		OrderID:       order.ID,
		CustomerEmail: email,
		CustomerName:  pc.PayerName,
		ProductName:   order.ProductName,
		ProductType:   order.ProductType,
		Amount:        order.Amount,
		OrderRef:      order.Reference(),
	})
	if err != nil {
		log.Error("paid-failure alert failed, releasing claim", zap.String("order_id", order.ID.String()), zap.Error(err))
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := s.orders.ReleaseConfirmation(releaseCtx, order.ID); relErr != nil {
			log.Error("failed to release confirmation claim", zap.Error(relErr))
		}
		return false
	}
	return true
}

// recoverOrder handles a paid session no stored order is bound to: first by
// re-binding the order named in the metadata, then by rebuilding it.
func (s *FulfillmentService) recoverOrder(ctx context.Context, pc PaymentConfirmation, log *zap.Logger) (*models.Order, bool, error) {
	orderID, idErr := uuid.Parse(pc.Metadata[MetaOrderID])
	if idErr == nil {
		err := s.orders.AttachSession(ctx, orderID, pc.SessionID)
		switch {
		case err == nil:
			transitioned, err := s.orders.Complete(ctx, pc.SessionID, pc.PaymentIntentID, pc.PayerEmail)
			if err != nil {
				return nil, false, fmt.Errorf("complete re-bound order: %w", err)
			}
			order, err := s.orders.FindBySessionID(ctx, pc.SessionID)
			if err != nil {
				return nil, false, fmt.Errorf("load re-bound order: %w", err)
			}
			log.Warn("order was missing its session id, re-bound from metadata", zap.String("order_id", orderID.String()))
			return order, transitioned, nil
		case errors.Is(err, repository.ErrOrderNotFound):
		case errors.Is(err, repository.ErrSessionConflict):
			log.Warn("metadata order belongs to another session, rebuilding under a new id",
				zap.String("metadata_order_id", orderID.String()))
			orderID = uuid.New()
		default:
			return nil, false, fmt.Errorf("attach session: %w", err)
		}
	} else {
		orderID = uuid.New()
	}
	return s.rebuild(ctx, orderID, pc, log)
}

func (s *FulfillmentService) rebuild(ctx context.Context, orderID uuid.UUID, pc PaymentConfirmation, log *zap.Logger) (*models.Order, bool, error) {
	product, ok := catalog.Lookup(ProductKeyFromMetadata(pc.Metadata))
	if !ok {
		log.Error("paid session has no order and no usable product metadata",
			zap.String("product_type", ProductKeyFromMetadata(pc.Metadata)))
		return nil, false, ErrOrderUnrecoverable
	}

	formData, ok := FormDataFromMetadata(pc.Metadata)
	if !ok {
		log.Warn("form data missing from session metadata, rebuilding order without it")
		formData = []byte("{}")
	}
	if pc.AmountTotal > 0 && pc.AmountTotal != product.Price {
		log.Warn("paid amount differs from catalog price",
			zap.Int64("paid", pc.AmountTotal),
			zap.Int64("price", product.Price),
		)
	}

	now := s.now()
	sessionID := pc.SessionID
	order := &models.Order{
		ID:              orderID,
		Email:           strings.TrimSpace(pc.PayerEmail),
		ProductType:     product.Type,
		ProductName:     product.Name,
		Amount:          product.Price,
		Currency:        models.CurrencyAUD,
		FormData:        datatypes.JSON(formData),
		Status:          models.StatusCompleted,
		StripeSessionID: &sessionID,
		CompletedAt:     &now,
	}
	if pc.PaymentIntentID != "" {
		paymentID := pc.PaymentIntentID
		order.StripePaymentID = &paymentID
	}
	if uid, err := uuid.Parse(pc.Metadata[MetaUserID]); err == nil {
		order.UserID = &uid
	}

	if err := s.orders.Create(ctx, order); err != nil {
		// a concurrent caller may have rebuilt it first
		if existing, findErr := s.orders.FindBySessionID(ctx, pc.SessionID); findErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("rebuild order: %w", err)
	}
	log.Warn("order rebuilt from session metadata", zap.String("order_id", order.ID.String()))
	return order, true, nil
}

func (s *FulfillmentService) announce(ctx context.Context, eventType string, order *models.Order, log *zap.Logger) {
	if s.events == nil {
		return
	}
	event := models.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID.String(),
		ProductType: string(order.ProductType),
		Amount:      order.Amount,
		Currency:    order.Currency,
		SessionID:   order.SessionID(),
		Timestamp:   s.now().UTC(),
	}
	if order.UserID != nil {
		event.UserID = order.UserID.String()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Error("failed to publish order event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// linkOwner attaches a guest order to the account registered under its email.
func (s *FulfillmentService) linkOwner(ctx context.Context, order *models.Order, log *zap.Logger) bool {
	if order.UserID != nil || s.users == nil || strings.TrimSpace(order.Email) == "" {
		return false
	}
	user, err := s.users.FindByEmail(ctx, order.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			log.Warn("account lookup failed", zap.Error(err))
		}
		return false
	}
	linked, err := s.orders.LinkUser(ctx, order.ID, user.ID)
	if err != nil {
		log.Warn("failed to link guest order", zap.Error(err))
		return false
	}
	if linked {
		order.UserID = &user.ID
		log.Info("guest order linked to account", zap.String("user_id", user.ID.String()))
	}
	return linked
}

// notifyOnce sends the confirmation if this caller wins the claim.
func (s *FulfillmentService) notifyOnce(ctx context.Context, order *models.Order, pc PaymentConfirmation, log *zap.Logger) bool {
	if s.notifier == nil {
		return false
	}
	email := strings.TrimSpace(order.Email)
	if email == "" {
		email = strings.TrimSpace(pc.PayerEmail)
	}
	if email == "" {
		log.Warn("no customer email, skipping confirmation", zap.String("order_id", order.ID.String()))
		return false
	}

	claimed, err := s.orders.ClaimConfirmation(ctx, order.ID)
	if err != nil {
		log.Error("failed to claim confirmation", zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}

	err = s.notifier.SendOrderConfirmation(ctx, OrderConfirmation{
		OrderID:       order.ID,
		CustomerEmail: email,
		CustomerName:  pc.PayerName,
		ProductName:   order.ProductName,
		ProductType:   order.ProductType,
		Amount:        order.Amount,
		OrderRef:      order.Reference(),
	})
	if err != nil {
		log.Error("order confirmation failed, releasing claim", zap.String("order_id", order.ID.String()), zap.Error(err))
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := s.orders.ReleaseConfirmation(releaseCtx, order.ID); relErr != nil {
			log.Error("failed to release confirmation claim", zap.Error(relErr))
		}
		return false
	}
	recordCount(s.metrics, awspkg.MetricConfirmationsSent, map[string]string{"ProductType": string(order.ProductType)})
	return true
}
