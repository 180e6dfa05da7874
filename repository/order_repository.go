package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/models"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrSessionConflict is returned when an order is already bound to a different checkout session.
	ErrSessionConflict = errors.New("order is bound to another checkout session")
)

// OrderRepository defines the interface for order data access.
//
// The state-changing methods are conditional updates and report whether this
// call performed the change, so concurrent callers can agree on a single winner.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	AttachSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	FindByIDAndUserID(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)

	Complete(ctx context.Context, sessionID, paymentID, email string) (bool, error)
	Fail(ctx context.Context, sessionID string) (bool, error)
	FailByID(ctx context.Context, orderID uuid.UUID) (bool, error)

	LinkUser(ctx context.Context, orderID, userID uuid.UUID) (bool, error)
	LinkGuestOrders(ctx context.Context, email string, userID uuid.UUID) (int64, error)
	ClaimConfirmation(ctx context.Context, orderID uuid.UUID) (bool, error)
	ReleaseConfirmation(ctx context.Context, orderID uuid.UUID) error
	MarkPDFGenerated(ctx context.Context, orderID uuid.UUID) error
}

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderRepository creates a new instance of GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db, now: time.Now}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	if order.Currency == "" {
		order.Currency = models.CurrencyAUD
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// AttachSession binds sessionID to the order. Re-attaching the same session is
// a no-op; attaching a different one fails with ErrSessionConflict.
func (r *GormOrderRepository) AttachSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND (stripe_session_id IS NULL OR stripe_session_id = ?)", orderID, sessionID).
		Update("stripe_session_id", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, orderID); err != nil {
			return err
		}
		return ErrSessionConflict
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *GormOrderRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// FindByUserID retrieves orders for a specific user with pagination
func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// FindByIDAndUserID retrieves a specific order for a user
func (r *GormOrderRepository) FindByIDAndUserID(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// Complete moves the order bound to sessionID from an open status to
// COMPLETED. It returns true only for the call that performed the transition.
func (r *GormOrderRepository) Complete(ctx context.Context, sessionID, paymentID, email string) (bool, error) {
	updates := map[string]interface{}{
		"status":       models.StatusCompleted,
		"completed_at": r.now(),
	}
	if paymentID != "" {
		updates["stripe_payment_id"] = paymentID
	}
	if email = strings.TrimSpace(email); email != "" {
		updates["email"] = email
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("stripe_session_id = ? AND status IN ?", sessionID, models.OpenStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOrderRepository) Fail(ctx context.Context, sessionID string) (bool, error) {
	return r.fail(ctx, "stripe_session_id = ?", sessionID)
}

func (r *GormOrderRepository) FailByID(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return r.fail(ctx, "id = ?", orderID)
}

func (r *GormOrderRepository) fail(ctx context.Context, cond string, arg interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where(cond+" AND status IN ?", arg, models.OpenStatuses).
		Updates(map[string]interface{}{
			"status":    models.StatusFailed,
			"failed_at": r.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LinkUser sets the owner of a guest order. An order that already has an
// owner is left untouched and false is returned.
func (r *GormOrderRepository) LinkUser(ctx context.Context, orderID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND user_id IS NULL", orderID).
		Update("user_id", userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LinkGuestOrders assigns every ownerless order placed with email to userID.
func (r *GormOrderRepository) LinkGuestOrders(ctx context.Context, email string, userID uuid.UUID) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("LOWER(email) = LOWER(?) AND user_id IS NULL", email).
		Update("user_id", userID)
	return res.RowsAffected, res.Error
}

// ClaimConfirmation marks the confirmation as sent. Only one caller per order
// ever gets true; that caller owns the send.
func (r *GormOrderRepository) ClaimConfirmation(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND confirmation_sent_at IS NULL", orderID).
		Update("confirmation_sent_at", r.now())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOrderRepository) ReleaseConfirmation(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("confirmation_sent_at", nil).Error
}

func (r *GormOrderRepository) MarkPDFGenerated(ctx context.Context, orderID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("pdf_generated", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	return err
}
