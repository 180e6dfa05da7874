package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/middleware"
	"github.com/longle289/TrustAustralia/models"
	"go.uber.org/zap"
)

type OrderReader interface {
	ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	GetUserOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	ClaimGuestOrders(ctx context.Context, email string, userID uuid.UUID) (int64, error)
}

type OrderController struct {
	orders OrderReader
	logger *zap.Logger
}

func NewOrderController(orders OrderReader, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, logger: logger}
}

func (oc *OrderController) ListOrders(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, oc.logger, apperrors.ErrUnauthorized)
		return
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 10)

	orders, total, err := oc.orders.ListUserOrders(c.Request.Context(), userID, page, limit)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total, "page": page, "limit": limit})
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, oc.logger, apperrors.ErrUnauthorized)
		return
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, oc.logger, apperrors.ErrOrderNotFound)
		return
	}

	order, err := oc.orders.GetUserOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ClaimOrders attaches guest orders placed with the account's email.
func (oc *OrderController) ClaimOrders(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, oc.logger, apperrors.ErrUnauthorized)
		return
	}
	email := middleware.GetUserEmail(c)
	if email == "" {
		respondError(c, oc.logger, apperrors.WithMessage(apperrors.ErrBadRequest, "Account has no email address"))
		return
	}

	n, err := oc.orders.ClaimGuestOrders(c.Request.Context(), email, userID)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": n})
}
