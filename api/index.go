package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mindforu/internal/auth"
	"mindforu/internal/billing"
	"mindforu/internal/logging"
	"mindforu/internal/metrics"
)

// NewRouter builds the gin engine serving the API. stripe may be nil, in
// which case Stripe webhooks answer 503.
func NewRouter(svc *DashboardService, stripe *billing.Handler, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(
		logging.RequestID(),
		logging.Middleware(svc.logger),
		logging.Recovery(svc.logger),
		cors.New(corsConfig(svc.config.CORSOrigins)),
		m.Middleware(),
	)

	setupRoutes(router, svc, stripe, m)
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
		ExposeHeaders: []string{logging.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func setupRoutes(router *gin.Engine, svc *DashboardService, stripe *billing.Handler, m *metrics.Metrics) {
	router.GET("/health", HealthCheckHandler(svc))
	router.GET("/api/health", HealthCheckHandler(svc))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "running",
			"message": "MindForU API",
			"version": Version,
		})
	})

	// Webhook endpoints
	router.POST("/webhook/vapi", VapiWebhookHandler(svc, m))
	router.POST("/api/webhook/vapi", VapiWebhookHandler(svc, m))
	stripeHandler := func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Message: "Stripe webhooks are not configured"})
	}
	if stripe != nil {
		stripeHandler = stripe.ServeWebhook
	}
	router.POST("/webhook/stripe", stripeHandler)
	router.POST("/api/webhook/stripe", stripeHandler)

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", RegisterHandler(svc))
	authGroup.POST("/login", LoginHandler(svc))
	authGroup.POST("/logout", LogoutHandler(svc))

	private := api.Group("", auth.RequireAuth(svc.auth, svc.store))
	private.GET("/auth/me", MeHandler(svc))

	private.GET("/assistants", ListAssistantsHandler(svc))
	private.POST("/assistants", CreateAssistantHandler(svc))
	private.GET("/assistants/:id", GetAssistantHandler(svc))
	private.PATCH("/assistants/:id", UpdateAssistantHandler(svc))
	private.PUT("/assistants/:id", UpdateAssistantHandler(svc))
	private.DELETE("/assistants/:id", DeleteAssistantHandler(svc))

	private.GET("/phone-numbers", ListPhoneNumbersHandler(svc))
	private.POST("/phone-numbers", CreatePhoneNumberHandler(svc))
	private.PATCH("/phone-numbers/:id", UpdatePhoneNumberHandler(svc))
	private.DELETE("/phone-numbers/:id", DeletePhoneNumberHandler(svc))

	private.GET("/calls", ListCallsHandler(svc))
	private.GET("/calls/:id", GetCallHandler(svc))
	private.GET("/dashboard/analytics", DashboardAnalyticsHandler(svc))
	private.GET("/vapi/call-stats", CallStatsHandler(svc))

	private.GET("/billing/invoices", InvoicesHandler(svc))
	private.GET("/billing/payment-methods", PaymentMethodsHandler(svc))

	admin := private.Group("/admin", auth.RequireAdmin())
	admin.GET("/users", AdminUsersHandler(svc))
	admin.GET("/assistants", AdminAssistantsHandler(svc))
	admin.POST("/assistants/import", ImportAssistantsHandler(svc))
	admin.POST("/assistants/:id/assign", AssignAssistantHandler(svc))
	admin.POST("/sync", AdminSyncHandler(svc))
	admin.GET("/sync", AdminSyncStatusHandler(svc))
	admin.GET("/analytics", AdminAnalyticsHandler(svc))
	admin.GET("/clients", AdminClientsHandler(svc))
}
