package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/common/logger"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// WebhookService verifies and applies Stripe webhook events. A nil error
// means the event may be acknowledged; an error with a 5xx status asks Stripe
// to deliver it again.
type WebhookService struct {
	gateway     PaymentGateway
	fulfillment *FulfillmentService
	metrics     MetricsRecorder
	logger      *zap.Logger
}

func NewWebhookService(gateway PaymentGateway, fulfillment *FulfillmentService, metrics MetricsRecorder, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		gateway:     gateway,
		fulfillment: fulfillment,
		metrics:     metricsOrNop(metrics),
		logger:      logger,
	}
}

func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	if !s.gateway.WebhookConfigured() {
		s.logger.Error("STRIPE_WEBHOOK_SECRET is not configured")
		return apperrors.ErrWebhookNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return apperrors.ErrMissingSignature
	}

	event, err := s.gateway.ConstructEvent(payload, signature)
	if err != nil {
		s.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		return apperrors.Wrap(apperrors.ErrInvalidSignature, err)
	}

	log := logger.For(ctx, s.logger).With(
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
	)
	log.Info("Processing Stripe webhook")

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event, log)
	case stripe.EventTypePaymentIntentPaymentFailed:
		s.handlePaymentFailed(ctx, event, log)
	case stripe.EventTypeCheckoutSessionExpired,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		log.Info("Checkout session event acknowledged without state change")
	case stripe.EventTypeChargeRefunded:
		log.Info("Refund received, refunds are handled manually")
	default:
		log.Info("Unhandled webhook event type")
	}
	return nil
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, event stripe.Event, log *zap.Logger) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		log.Error("Failed to unmarshal checkout session", zap.Error(err))
		return apperrors.Wrap(apperrors.ErrBadRequest, err)
	}
	log = log.With(zap.String("session_id", sess.ID))

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Info("Checkout completed without payment, waiting for settlement",
			zap.String("payment_status", string(sess.PaymentStatus)))
		return nil
	}

	res, err := s.fulfillment.Complete(ctx, confirmationFromSession(&sess, SourceWebhook))
	if errors.Is(err, ErrOrderUnrecoverable) {
		// retrying cannot produce the missing metadata
		log.Error("Paid session could not be matched to an order", zap.Error(err))
		return nil
	}
	if err != nil {
		log.Error("Failed to complete order", zap.Error(err))
		return apperrors.Wrap(apperrors.ErrWebhookProcessing, err)
	}

	log.Info("Checkout session processed",
		zap.String("order_id", res.Order.ID.String()),
		zap.Bool("transitioned", res.Transitioned),
		zap.Bool("notified", res.Notified),
	)
	return nil
}

func (s *WebhookService) handlePaymentFailed(ctx context.Context, event stripe.Event, log *zap.Logger) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		log.Error("Failed to unmarshal payment intent", zap.Error(err))
		return
	}
	log = log.With(zap.String("payment_intent_id", pi.ID))
	reason := "unknown"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}
	log.Warn("Payment failed", zap.String("reason", reason))
	recordCount(s.metrics, awspkg.MetricPaymentFailed, nil)

	orderID, err := uuid.Parse(pi.Metadata[MetaOrderID])
	if err != nil {
		log.Warn("Payment failure without an order id in metadata")
		return
	}

	failed, err := s.fulfillment.FailOrder(ctx, orderID)
	if err != nil {
		log.Error("Failed to mark order failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return
	}
	if !failed {
		log.Info("No open order to fail", zap.String("order_id", orderID.String()))
	}
}
