package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/models"
	"gorm.io/gorm"
)

// NotificationRepository keeps one row per send attempt.
type NotificationRepository interface {
	SaveLog(ctx context.Context, log *models.NotificationLog) error
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.NotificationLog, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) SaveLog(ctx context.Context, log *models.NotificationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListForOrder returns the send history of an order, oldest first.
func (r *notificationRepository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Limit(maxNotificationHistory).
		Find(&logs).Error
	return logs, err
}

const maxNotificationHistory = 50
