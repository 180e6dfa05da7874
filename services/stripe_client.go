package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// Checkout session metadata keys. Together they let an order be rebuilt from
// the session alone.
const (
	MetaProductType   = "productType"
	MetaFormData      = "formData"
	MetaFormDataParts = "formDataParts"
	MetaOrderID       = "orderId"
	MetaUserID        = "userId"

	// sessions created before productType was introduced carry trustType
	metaLegacyProductType = "trustType"
)

const (
	// Stripe rejects metadata values longer than 500 characters and more than 50 keys.
	metadataValueLimit = 500
	maxFormDataParts   = 40
)

// CheckoutSessionInput is everything needed to open a hosted checkout page.
type CheckoutSessionInput struct {
	OrderID        string
	UserID         string
	ProductKey     string
	ProductName    string
	Description    string
	Amount         int64
	Currency       string
	CustomerEmail  string
	FormData       []byte
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// PaymentGateway is the payment provider as seen by the order services.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
	WebhookConfigured() bool
}

// StripeService talks to Stripe using the API version pinned by stripe-go
// (stripe.APIVersion) for both outgoing calls and webhook verification.
type StripeService struct {
	sessions   *session.Client
	webhookKey string
	logger     *zap.Logger
}

func NewStripeService(secretKey, webhookKey string, logger *zap.Logger) *StripeService {
	return NewStripeServiceWithBackend(secretKey, webhookKey, stripe.GetBackend(stripe.APIBackend), logger)
}

// NewStripeServiceWithBackend lets callers point the client at another API
// host, such as stripe-mock.
func NewStripeServiceWithBackend(secretKey, webhookKey string, backend stripe.Backend, logger *zap.Logger) *StripeService {
	return &StripeService{
		sessions:   &session.Client{B: backend, Key: secretKey},
		webhookKey: webhookKey,
		logger:     logger,
	}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(in.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(in.ProductName),
						Description: stripe.String(in.Description),
					},
					UnitAmount: stripe.Int64(in.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetaOrderID: in.OrderID},
		},
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	for k, v := range SessionMetadata(in.ProductKey, in.OrderID, in.UserID, in.FormData, s.logger) {
		params.AddMetadata(k, v)
	}

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sess, nil
}

func (s *StripeService) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := s.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, apperrors.Wrap(apperrors.ErrSessionNotFound, err)
		}
		return nil, fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	return sess, nil
}

func (s *StripeService) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, s.webhookKey)
}

func (s *StripeService) WebhookConfigured() bool {
	return s.webhookKey != ""
}

// SessionMetadata builds the recovery metadata for a checkout session. Form
// data longer than one metadata value is split across formData_0..n; data too
// large even for that is left out and only orderId remains to recover with.
func SessionMetadata(productKey, orderID, userID string, formData []byte, logger *zap.Logger) map[string]string {
	md := map[string]string{
		MetaProductType: productKey,
		MetaOrderID:     orderID,
		MetaUserID:      userID,
	}

	data := string(formData)
	switch {
	case len(data) <= metadataValueLimit:
		md[MetaFormData] = data
	case len(data) <= metadataValueLimit*maxFormDataParts:
		parts := 0
		for start := 0; start < len(data); parts++ {
			end := start + metadataValueLimit
			if end >= len(data) {
				end = len(data)
			} else {
				// never split a multi-byte character
				for end > start && !utf8.RuneStart(data[end]) {
					end--
				}
			}
			md[fmt.Sprintf("%s_%d", MetaFormData, parts)] = data[start:end]
			start = end
		}
		if parts > maxFormDataParts {
			for i := 0; i < parts; i++ {
				delete(md, fmt.Sprintf("%s_%d", MetaFormData, i))
			}
			logOversize(logger, orderID, len(data))
			break
		}
		md[MetaFormDataParts] = strconv.Itoa(parts)
	default:
		logOversize(logger, orderID, len(data))
	}
	return md
}

func logOversize(logger *zap.Logger, orderID string, size int) {
	if logger == nil {
		return
	}
	logger.Warn("form data too large for session metadata, omitting",
		zap.String("order_id", orderID),
		zap.Int("bytes", size),
	)
}

// FormDataFromMetadata reassembles the form data stored by SessionMetadata.
func FormDataFromMetadata(md map[string]string) ([]byte, bool) {
	if v, ok := md[MetaFormData]; ok && v != "" {
		return []byte(v), true
	}
	n, err := strconv.Atoi(md[MetaFormDataParts])
	if err != nil || n <= 0 || n > maxFormDataParts {
		return nil, false
	}
	var out []byte
	for i := 0; i < n; i++ {
		part, ok := md[fmt.Sprintf("%s_%d", MetaFormData, i)]
		if !ok {
			return nil, false
		}
		out = append(out, part...)
	}
	return out, true
}

// ProductKeyFromMetadata returns the catalog key recorded on a session.
func ProductKeyFromMetadata(md map[string]string) string {
	if v := md[MetaProductType]; v != "" {
		return v
	}
	return md[metaLegacyProductType]
}
