package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/longle289/TrustAustralia/catalog"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/common/logger"
	"github.com/longle289/TrustAustralia/forms"
	"github.com/longle289/TrustAustralia/models"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

const receiptDateLayout = "02/01/2006"

// Receipt is the read-only summary shown on the success page.
type Receipt struct {
	OrderID         string `json:"orderId,omitempty"`
	ProductType     string `json:"productType"`
	ProductName     string `json:"productName"`
	EntityLabel     string `json:"entityLabel"`
	Amount          int64  `json:"amount"`
	AmountFormatted string `json:"amountFormatted"`
	Currency        string `json:"currency"`
	Date            string `json:"date"`
	PaymentStatus   string `json:"paymentStatus"`
	PayerEmail      string `json:"payerEmail"`
}

// ReconcileQueue hands a session to the background reconcile worker.
type ReconcileQueue interface {
	Enqueue(ctx context.Context, sessionID string) error
}

type ReconcileMessage struct {
	SessionID string `json:"sessionId"`
}

type messageSender interface {
	SendMessage(ctx context.Context, body string) error
}

// SQSReconcileQueue sends reconcile requests to an SQS queue.
type SQSReconcileQueue struct {
	sqs messageSender
}

func NewSQSReconcileQueue(sqs messageSender) *SQSReconcileQueue {
	return &SQSReconcileQueue{sqs: sqs}
}

func (q *SQSReconcileQueue) Enqueue(ctx context.Context, sessionID string) error {
	body, err := json.Marshal(ReconcileMessage{SessionID: sessionID})
	if err != nil {
		return err
	}
	return q.sqs.SendMessage(ctx, string(body))
}

// VerifyService is the browser return path. It checks the session with
// Stripe and runs the same completion as the webhook.
type VerifyService struct {
	gateway     PaymentGateway
	fulfillment *FulfillmentService
	queue       ReconcileQueue
	metrics     MetricsRecorder
	logger      *zap.Logger
	location    *time.Location
	now         func() time.Time
}

func NewVerifyService(
	gateway PaymentGateway,
	fulfillment *FulfillmentService,
	queue ReconcileQueue,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *VerifyService {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		loc = time.FixedZone("AEST", 10*60*60)
	}
	return &VerifyService{
		gateway:     gateway,
		fulfillment: fulfillment,
		queue:       queue,
		metrics:     metricsOrNop(metrics),
		logger:      logger,
		location:    loc,
		now:         time.Now,
	}
}

// Verify returns the receipt for a paid session. Local bookkeeping failures
// do not fail it: the session is queued for reconciliation instead.
func (s *VerifyService) Verify(ctx context.Context, sessionID string) (*Receipt, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.ErrMissingSessionID
	}
	log := logger.For(ctx, s.logger).With(zap.String("session_id", sessionID))

	sess, err := s.paidSession(ctx, sessionID, log)
	if err != nil {
		return nil, err
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, apperrors.ErrPaymentNotCompleted
	}

	pc := confirmationFromSession(sess, SourceReturnPath)
	var order *models.Order
	res, err := s.fulfillment.Complete(ctx, pc)
	switch {
	case err == nil:
		order = res.Order
	case errors.Is(err, ErrOrderUnrecoverable):
		log.Error("paid session could not be matched to an order", zap.Error(err))
	default:
		log.Error("failed to complete order on return path", zap.Error(err))
		s.enqueue(ctx, sessionID, log)
	}
	return s.receipt(sess, pc, order), nil
}

// Reconcile re-runs completion for a session. Unpaid sessions are left alone.
func (s *VerifyService) Reconcile(ctx context.Context, sessionID string) (*CompletionResult, error) {
	log := logger.For(ctx, s.logger).With(zap.String("session_id", sessionID))

	sess, err := s.paidSession(ctx, sessionID, log)
	if err != nil {
		return nil, err
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Info("session not paid, nothing to reconcile", zap.String("payment_status", string(sess.PaymentStatus)))
		return nil, nil
	}
	return s.fulfillment.Complete(ctx, confirmationFromSession(sess, SourceReconcile))
}

func (s *VerifyService) paidSession(ctx context.Context, sessionID string, log *zap.Logger) (*stripe.CheckoutSession, error) {
	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionNotFound) {
			return nil, err
		}
		log.Error("failed to retrieve checkout session", zap.Error(err))
		return nil, apperrors.Wrap(apperrors.ErrVerificationFailed, err)
	}
	return sess, nil
}

func (s *VerifyService) enqueue(ctx context.Context, sessionID string, log *zap.Logger) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), sessionID); err != nil {
		log.Error("failed to enqueue session for reconciliation", zap.Error(err))
		return
	}
	recordCount(s.metrics, awspkg.MetricReconcileEnqueued, nil)
	log.Info("session queued for reconciliation")
}

func (s *VerifyService) receipt(sess *stripe.CheckoutSession, pc PaymentConfirmation, order *models.Order) *Receipt {
	key := ProductKeyFromMetadata(sess.Metadata)
	product, known := catalog.Lookup(key)
	formData, _ := FormDataFromMetadata(sess.Metadata)
	date := s.now()

	r := &Receipt{
		Amount:        sess.AmountTotal,
		Currency:      string(sess.Currency),
		PaymentStatus: string(sess.PaymentStatus),
		PayerEmail:    pc.PayerEmail,
	}
	if order != nil {
		r.OrderID = order.ID.String()
		if p, ok := catalog.ByType(order.ProductType); ok {
			product, known = p, true
		}
		if len(order.FormData) > 0 {
			formData = order.FormData
		}
		if order.CompletedAt != nil {
			date = *order.CompletedAt
		}
		if r.PayerEmail == "" {
			r.PayerEmail = order.Email
		}
	}

	if known {
		r.ProductType = product.Key
		r.ProductName = product.Name
		r.EntityLabel = forms.EntityLabel(product.Type, formData)
	} else {
		r.ProductType = key
		r.ProductName = "Trust Document"
		r.EntityLabel = forms.EntityLabel("", formData)
	}
	if r.Currency == "" {
		r.Currency = models.CurrencyAUD
	}
	r.AmountFormatted = catalog.FormatAmount(r.Amount)
	r.Date = date.In(s.location).Format(receiptDateLayout)
	return r
}
