package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`

	base *Error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether e and target derive from the same predefined error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.root() == t.root()
}

func (e *Error) root() *Error {
	if e.base != nil {
		return e.base
	}
	return e
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of base carrying err as its cause. The predefined
// values below are shared and must never be mutated.
func Wrap(base *Error, err error) *Error {
	return &Error{Code: base.Code, Message: base.Message, Err: err, base: base.root()}
}

// WithMessage returns a copy of base with a more specific message.
func WithMessage(base *Error, message string) *Error {
	return &Error{Code: base.Code, Message: message, Err: base.Err, base: base.root()}
}

// StatusOf maps err to an HTTP status; anything that is not an *Error is a 500.
func StatusOf(err error) int {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternalServer.Message
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrForbidden          = New(http.StatusForbidden, "Forbidden", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
)

// Checkout errors
var (
	ErrInvalidProduct         = New(http.StatusBadRequest, "Invalid product type", nil)
	ErrInvalidFormData        = New(http.StatusBadRequest, "Invalid form data", nil)
	ErrCheckoutCreationFailed = New(http.StatusInternalServerError, "Failed to create checkout session", nil)
	ErrIdempotencyKeyReused   = New(http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different checkout", nil)
)

// Webhook errors
var (
	ErrMissingSignature     = New(http.StatusBadRequest, "No signature provided", nil)
	ErrInvalidSignature     = New(http.StatusBadRequest, "Invalid signature", nil)
	ErrWebhookNotConfigured = New(http.StatusInternalServerError, "Webhook secret not configured", nil)
	ErrWebhookProcessing    = New(http.StatusInternalServerError, "Webhook processing failed", nil)
)

// Verification and order errors
var (
	ErrMissingSessionID    = New(http.StatusBadRequest, "Session ID is required", nil)
	ErrSessionNotFound     = New(http.StatusNotFound, "Session not found", nil)
	ErrPaymentNotCompleted = New(http.StatusBadRequest, "Payment not completed", nil)
	ErrVerificationFailed  = New(http.StatusInternalServerError, "Failed to verify payment", nil)
	ErrOrderNotFound       = New(http.StatusNotFound, "Order not found", nil)
	ErrNotificationFailed  = New(http.StatusInternalServerError, "Failed to send notification", nil)
	ErrManualProcessing    = New(http.StatusBadRequest, "This product requires manual processing", nil)
	ErrDocumentFailed      = New(http.StatusInternalServerError, "Failed to generate document", nil)
)

// ErrorMiddleware renders the last gin error attached by a handler.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		c.JSON(StatusOf(err), gin.H{"error": MessageOf(err)})
		c.Abort()
	}
}
