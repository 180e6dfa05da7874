package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/longle289/TrustAustralia/services"
	"go.uber.org/zap"
)

type PaymentVerifier interface {
	Verify(ctx context.Context, sessionID string) (*services.Receipt, error)
}

type VerifyController struct {
	verifier PaymentVerifier
	logger   *zap.Logger
}

func NewVerifyController(verifier PaymentVerifier, logger *zap.Logger) *VerifyController {
	return &VerifyController{verifier: verifier, logger: logger}
}

func (vc *VerifyController) VerifyPayment(c *gin.Context) {
	receipt, err := vc.verifier.Verify(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		respondError(c, vc.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}
