package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/middleware"
	"github.com/longle289/TrustAustralia/services"
	"go.uber.org/zap"
)

type CheckoutStarter interface {
	StartCheckout(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutResponse, error)
}

type CheckoutController struct {
	checkout CheckoutStarter
	logger   *zap.Logger
}

func NewCheckoutController(checkout CheckoutStarter, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{checkout: checkout, logger: logger}
}

// CreateCheckout opens a hosted checkout for a validated order form. Guests
// and signed-in users are both accepted.
func (cc *CheckoutController) CreateCheckout(c *gin.Context) {
	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, cc.logger, apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	if userID, ok := middleware.GetUserID(c); ok {
		req.UserID = &userID
		req.Email = middleware.GetUserEmail(c)
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := cc.checkout.StartCheckout(c.Request.Context(), req)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
