package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrap_DoesNotMutatePredefined(t *testing.T) {
	cause := stderrors.New("stripe down")
	wrapped := apperrors.Wrap(apperrors.ErrCheckoutCreationFailed, cause)

	assert.Nil(t, apperrors.ErrCheckoutCreationFailed.Err)
	assert.ErrorIs(t, wrapped, apperrors.ErrCheckoutCreationFailed)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "Failed to create checkout session: stripe down", wrapped.Error())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(apperrors.ErrPaymentNotCompleted))
	assert.Equal(t, http.StatusNotFound, apperrors.StatusOf(fmt.Errorf("lookup: %w", apperrors.ErrSessionNotFound)))
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(stderrors.New("boom")))

	assert.Equal(t, "Payment not completed", apperrors.MessageOf(apperrors.ErrPaymentNotCompleted))
	assert.Equal(t, "Internal server error", apperrors.MessageOf(stderrors.New("db password leaked")))
}

func TestIs_DistinguishesErrors(t *testing.T) {
	assert.False(t, stderrors.Is(apperrors.ErrMissingSignature, apperrors.ErrInvalidSignature))
	detailed := apperrors.WithMessage(apperrors.ErrInvalidFormData, "invalid form data: trustDetails.trustName (required)")
	assert.ErrorIs(t, detailed, apperrors.ErrInvalidFormData)
	assert.NotErrorIs(t, detailed, apperrors.ErrBadRequest)
	assert.ErrorIs(t, apperrors.Wrap(detailed, stderrors.New("x")), apperrors.ErrInvalidFormData)
}

func TestErrorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(apperrors.Wrap(apperrors.ErrOrderNotFound, stderrors.New("no rows")))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Order not found"}`, w.Body.String())
}
