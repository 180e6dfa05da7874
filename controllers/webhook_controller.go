package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"go.uber.org/zap"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 1 << 20

type EventHandler interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

type WebhookController struct {
	events EventHandler
	logger *zap.Logger
}

func NewWebhookController(events EventHandler, logger *zap.Logger) *WebhookController {
	return &WebhookController{events: events, logger: logger}
}

// StripeWebhook needs the untouched request body for signature verification.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, wc.logger, apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	if err := wc.events.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, wc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
