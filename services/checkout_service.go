package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/catalog"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/common/logger"
	"github.com/longle289/TrustAustralia/forms"
	"github.com/longle289/TrustAustralia/models"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"github.com/longle289/TrustAustralia/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type CheckoutRequest struct {
	ProductType string `json:"productType"`
	// Type is the older name of ProductType, still sent by some forms.
	Type     string          `json:"type"`
	FormData json.RawMessage `json:"formData"`

	UserID         *uuid.UUID `json:"-"`
	Email          string     `json:"-"`
	IdempotencyKey string     `json:"-"`
}

type CheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
	OrderID     string `json:"orderId"`
}

type CheckoutService struct {
	gateway   PaymentGateway
	orders    repository.OrderRepository
	validator *forms.FormValidator
	idem      repository.IdempotencyStore
	metrics   MetricsRecorder
	baseURL   string
	logger    *zap.Logger
}

func NewCheckoutService(
	gateway PaymentGateway,
	orders repository.OrderRepository,
	validator *forms.FormValidator,
	idem repository.IdempotencyStore,
	metrics MetricsRecorder,
	baseURL string,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		gateway:   gateway,
		orders:    orders,
		validator: validator,
		idem:      idem,
		metrics:   metricsOrNop(metrics),
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

// StartCheckout persists a PENDING order and opens a hosted checkout session
// for it. A repeated Idempotency-Key with the same request returns the first
// response; the same key with a different request is rejected.
func (s *CheckoutService) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	log := logger.For(ctx, s.logger)

	key := req.ProductType
	if key == "" {
		key = req.Type
	}
	product, ok := catalog.Lookup(key)
	if !ok {
		return nil, apperrors.ErrInvalidProduct
	}

	if err := s.validator.Validate(product.Type, req.FormData); err != nil {
		var verr *forms.ValidationError
		if errors.As(err, &verr) {
			return nil, apperrors.Wrap(apperrors.ErrInvalidFormData, err)
		}
		return nil, apperrors.Wrap(apperrors.ErrInvalidProduct, err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, req.FormData); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidFormData, err)
	}
	email := strings.TrimSpace(req.Email)

	entry, err := s.claimKey(ctx, req.IdempotencyKey, requestFingerprint(req.UserID, email, product.Key, compact.Bytes()), log)
	if err != nil {
		return nil, err
	}
	if entry.Response != nil {
		log.Info("replaying checkout response", zap.String("session_id", entry.Response.SessionID))
		return entry.Response, nil
	}

	var order *models.Order
	if entry.prior {
		order, err = s.orderForKey(ctx, entry.OrderID)
		if err != nil {
			log.Error("failed to load reserved order", zap.String("order_id", entry.OrderID.String()), zap.Error(err))
			return nil, apperrors.Wrap(apperrors.ErrCheckoutCreationFailed, err)
		}
	}
	if order == nil {
		order = &models.Order{
			ID:          entry.OrderID,
			UserID:      req.UserID,
			Email:       email,
			ProductType: product.Type,
			ProductName: product.Name,
			Amount:      product.Price,
			Currency:    models.CurrencyAUD,
			FormData:    datatypes.JSON(compact.Bytes()),
			Status:      models.StatusPending,
		}
		if err := s.orders.Create(ctx, order); err != nil {
			log.Error("failed to create order", zap.String("product", product.Key), zap.Error(err))
			return nil, apperrors.Wrap(apperrors.ErrCheckoutCreationFailed, err)
		}
		recordCount(s.metrics, awspkg.MetricOrdersCreated, map[string]string{"ProductType": string(product.Type)})
	} else {
		log.Info("retrying checkout for reserved order", zap.String("order_id", order.ID.String()))
	}
	log = log.With(zap.String("order_id", order.ID.String()))

	// every attempt under one key sends identical parameters, so Stripe
	// returns the same session instead of an idempotency error
	in := CheckoutSessionInput{
		OrderID:       order.ID.String(),
		ProductKey:    product.Key,
		ProductName:   product.Name,
		Description:   product.Description,
		Amount:        product.Price,
		Currency:      models.CurrencyAUD,
		CustomerEmail: email,
		FormData:      compact.Bytes(),
		SuccessURL:    s.baseURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.baseURL + product.CancelPath,
	}
	if req.UserID != nil {
		in.UserID = req.UserID.String()
	}
	if req.IdempotencyKey != "" {
		in.IdempotencyKey = "checkout-" + req.IdempotencyKey
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, in)
	if err != nil {
		log.Error("stripe checkout session creation failed", zap.Error(err))
		return nil, apperrors.Wrap(apperrors.ErrCheckoutCreationFailed, err)
	}
	if err := s.orders.AttachSession(ctx, order.ID, sess.ID); err != nil {
		// the session metadata still names the order, so payment can be reconciled
		log.Error("failed to store session id on order", zap.String("session_id", sess.ID), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.ErrCheckoutCreationFailed, err)
	}

	resp := &CheckoutResponse{SessionID: sess.ID, RedirectURL: sess.URL, OrderID: order.ID.String()}
	log.Info("checkout session created", zap.String("session_id", sess.ID), zap.String("product", product.Key))
	entry.Response = resp
	s.remember(ctx, req.IdempotencyKey, entry, log)
	return resp, nil
}

// idempotencyEntry is stored under an Idempotency-Key. OrderID is reserved
// before Stripe is called; Response is filled once the session exists.
type idempotencyEntry struct {
	Fingerprint string            `json:"fingerprint"`
	OrderID     uuid.UUID         `json:"orderId"`
	Response    *CheckoutResponse `json:"response,omitempty"`

	prior bool
}

// requestFingerprint identifies what a checkout was for: the caller, the
// product and the exact form.
func requestFingerprint(userID *uuid.UUID, email, productKey string, formData []byte) string {
	caller := "guest"
	if userID != nil {
		caller = "user:" + userID.String()
	}
	h := sha256.New()
	for _, part := range []string{caller, strings.ToLower(email), productKey} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(formData)
	return hex.EncodeToString(h.Sum(nil))
}

// claimKey returns the entry governing this request. Without a key or a store
// every request gets a fresh order id. Store errors degrade to no idempotency.
func (s *CheckoutService) claimKey(ctx context.Context, key, fingerprint string, log *zap.Logger) (*idempotencyEntry, error) {
	mine := &idempotencyEntry{Fingerprint: fingerprint, OrderID: uuid.New()}
	if key == "" || s.idem == nil {
		return mine, nil
	}
	raw, err := json.Marshal(mine)
	if err != nil {
		return mine, nil
	}
	reserved, err := s.idem.Reserve(ctx, key, raw)
	if err != nil {
		log.Warn("idempotency reservation failed", zap.Error(err))
		return mine, nil
	}
	if reserved {
		return mine, nil
	}

	existing, found, err := s.idem.Get(ctx, key)
	if err != nil {
		log.Warn("idempotency lookup failed", zap.Error(err))
		return mine, nil
	}
	if !found {
		return mine, nil
	}
	var stored idempotencyEntry
	if err := json.Unmarshal(existing, &stored); err != nil || stored.OrderID == uuid.Nil {
		log.Warn("replacing unreadable idempotency entry", zap.Error(err))
		if err := s.idem.Save(ctx, key, raw); err != nil {
			log.Warn("failed to store idempotency entry", zap.Error(err))
		}
		return mine, nil
	}
	if stored.Fingerprint != fingerprint {
		log.Warn("idempotency key reused for a different checkout")
		return nil, apperrors.ErrIdempotencyKeyReused
	}
	stored.prior = true
	return &stored, nil
}

// orderForKey returns the order already created under a reserved id, or nil.
func (s *CheckoutService) orderForKey(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, nil
	}
	return order, err
}

func (s *CheckoutService) remember(ctx context.Context, key string, entry *idempotencyEntry, log *zap.Logger) {
	if key == "" || s.idem == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.idem.Save(ctx, key, raw); err != nil {
		log.Warn("failed to store idempotency entry", zap.Error(err))
	}
}
