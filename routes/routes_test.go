package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/longle289/TrustAustralia/common/auth"
	commonmw "github.com/longle289/TrustAustralia/common/middleware"
	"github.com/longle289/TrustAustralia/controllers"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := gin.New()
	log := zap.NewNop()
	RegisterRoutes(r, Controllers{
		Checkout:  controllers.NewCheckoutController(nil, log),
		Webhook:   controllers.NewWebhookController(nil, log),
		Verify:    controllers.NewVerifyController(nil, log),
		Documents: controllers.NewDocumentController(nil, log),
		Orders:    controllers.NewOrderController(nil, log),
	}, auth.NewTokenParser("test-secret"), commonmw.NewRateLimiter(ctx, 1, burst, time.Minute))
	return r
}

func TestHealth(t *testing.T) {
	r := setupRouter(t, 1)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	r := setupRouter(t, 1)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/orders"},
		{http.MethodGet, "/api/orders/3b7f0c2e-8f6d-4c1a-9c55-1f2e3d4c5b6a"},
		{http.MethodPost, "/api/orders/claim"},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestCheckoutIsRateLimited(t *testing.T) {
	// a zero burst rejects before any handler runs
	r := setupRouter(t, 0)

	for _, path := range []string{"/api/checkout", "/api/generate-pdf"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code, path)
	}
}
