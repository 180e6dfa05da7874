package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/common/logger"
	"go.uber.org/zap"
)

// respondError hands err to apperrors.ErrorMiddleware, which renders its
// typed status and message. Server-side failures are logged with the cause.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := apperrors.StatusOf(err)
	if status >= 500 {
		logger.For(c.Request.Context(), log).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.Abort()
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
