package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/models"
	"github.com/longle289/TrustAustralia/repository"
	"go.uber.org/zap"
)

// OrderService serves a signed-in account's view of its orders.
type OrderService struct {
	orders repository.OrderRepository
	logger *zap.Logger
}

func NewOrderService(orders repository.OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{orders: orders, logger: logger}
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	orders, total, err := s.orders.FindByUserID(ctx, userID, page, limit)
	if err != nil {
		s.logger.Error("failed to list orders", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return orders, total, nil
}

func (s *OrderService) GetUserOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByIDAndUserID(ctx, orderID, userID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return order, nil
}

// ClaimGuestOrders gives the account every ownerless order placed with its
// email. Orders that already have an owner are never reassigned.
func (s *OrderService) ClaimGuestOrders(ctx context.Context, email string, userID uuid.UUID) (int64, error) {
	n, err := s.orders.LinkGuestOrders(ctx, email, userID)
	if err != nil {
		s.logger.Error("failed to claim guest orders", zap.String("user_id", userID.String()), zap.Error(err))
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if n > 0 {
		s.logger.Info("guest orders claimed", zap.String("user_id", userID.String()), zap.Int64("count", n))
	}
	return n, nil
}
