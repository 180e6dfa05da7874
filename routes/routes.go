package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/longle289/TrustAustralia/common/auth"
	commonmw "github.com/longle289/TrustAustralia/common/middleware"
	"github.com/longle289/TrustAustralia/controllers"
	"github.com/longle289/TrustAustralia/middleware"
)

type Controllers struct {
	Checkout  *controllers.CheckoutController
	Webhook   *controllers.WebhookController
	Verify    *controllers.VerifyController
	Documents *controllers.DocumentController
	Orders    *controllers.OrderController
}

// RegisterRoutes mounts the public API. Checkout and document generation are
// rate limited per client IP; the Stripe webhook is not.
func RegisterRoutes(r *gin.Engine, ctl Controllers, tokens *auth.TokenParser, limiter *commonmw.RateLimiter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	api := r.Group("/api")
	{
		api.POST("/checkout", limiter.Middleware(), middleware.OptionalAuth(tokens), ctl.Checkout.CreateCheckout)
		api.POST("/generate-pdf", limiter.Middleware(), ctl.Documents.GeneratePDF)
		api.GET("/verify-payment", ctl.Verify.VerifyPayment)

		// Stripe webhook (no auth, signature checked by the handler)
		api.POST("/webhook", ctl.Webhook.StripeWebhook)
	}

	orders := api.Group("/orders")
	orders.Use(middleware.RequireAuth(tokens))
	{
		orders.GET("", ctl.Orders.ListOrders)
		orders.GET("/:id", ctl.Orders.GetOrder)
		orders.POST("/claim", ctl.Orders.ClaimOrders)
	}
}
