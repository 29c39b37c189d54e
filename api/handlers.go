package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mindforu/internal/auth"
	"mindforu/internal/callsync"
	"mindforu/internal/metrics"
	"mindforu/internal/store"
	"mindforu/internal/vapi"
)

// Version is reported by the health check and the CLI
var Version = "dev"

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var apiErr *vapi.APIError
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, callsync.ErrInvalidCall):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, callsync.ErrUnknownAssistant):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, callsync.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, vapi.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. Internal errors are logged and not echoed.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("❌ [HTTP] request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		message = "internal server error"
	}
	c.JSON(status, Response{Success: false, Message: message})
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: message})
}

// viewer returns the signed-in user. RequireAuth guarantees it is set.
func viewer(c *gin.Context) *auth.Claims {
	claims, _ := auth.FromContext(c)
	return claims
}

func sessionPayload(s *Session) SessionResponse {
	return SessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
		User:      s.User,
	}
}

func setSessionCookie(c *gin.Context, svc *DashboardService, s *Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookie, s.Token, int(svc.auth.TTL().Seconds()), "/", "",
		svc.config.IsProduction(), true)
}

// HealthCheckHandler reports whether the database answers
func HealthCheckHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		database := "connected"
		if err := svc.store.Ping(c.Request.Context()); err != nil {
			status, code, database = "degraded", http.StatusServiceUnavailable, "unreachable"
		}
		c.JSON(code, gin.H{
			"status":   status,
			"service":  "MindForU API",
			"version":  Version,
			"database": database,
			"vapi":     svc.config.HasVapiConfig(),
			"sync":     svc.scheduler.Status(),
		})
	}
}

// ---- auth ----

// RegisterHandler creates an account
func RegisterHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		session, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		setSessionCookie(c, svc, session)
		c.JSON(http.StatusCreated, Response{Success: true, Message: "Account created", Data: sessionPayload(session)})
	}
}

// LoginHandler signs a user in
func LoginHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		session, err := svc.Login(c.Request.Context(), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		setSessionCookie(c, svc, session)
		ok(c, "Logged in", sessionPayload(session))
	}
}

// LogoutHandler clears the session cookie
func LogoutHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie(auth.SessionCookie, "", -1, "/", "", svc.config.IsProduction(), true)
		ok(c, "Logged out", nil)
	}
}

// MeHandler returns the signed-in user
func MeHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := svc.Me(c.Request.Context(), viewer(c))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", user)
	}
}

// ---- assistants ----

// ListAssistantsHandler lists the viewer's assistants
func ListAssistantsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListAssistants(c.Request.Context(), viewer(c))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", list)
	}
}

// GetAssistantHandler returns one assistant
func GetAssistantHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svc.GetAssistant(c.Request.Context(), viewer(c), c.Param("id"))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", a)
	}
}

// CreateAssistantHandler creates an assistant
func CreateAssistantHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssistantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		a, err := svc.CreateAssistant(c.Request.Context(), viewer(c), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		c.JSON(http.StatusCreated, Response{Success: true, Message: "Assistant created", Data: a})
	}
}

// UpdateAssistantHandler edits an assistant
func UpdateAssistantHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssistantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		a, err := svc.UpdateAssistant(c.Request.Context(), viewer(c), c.Param("id"), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Assistant updated", a)
	}
}

// DeleteAssistantHandler deletes an assistant
func DeleteAssistantHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteAssistant(c.Request.Context(), viewer(c), c.Param("id")); err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Assistant deleted", nil)
	}
}

// ---- phone numbers ----

// ListPhoneNumbersHandler lists the viewer's numbers
func ListPhoneNumbersHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListPhoneNumbers(c.Request.Context(), viewer(c))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", list)
	}
}

// CreatePhoneNumberHandler buys or imports a number
func CreatePhoneNumberHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PhoneNumberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		n, err := svc.CreatePhoneNumber(c.Request.Context(), viewer(c), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		c.JSON(http.StatusCreated, Response{Success: true, Message: "Phone number created", Data: n})
	}
}

// UpdatePhoneNumberHandler edits a number
func UpdatePhoneNumberHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PhoneNumberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		n, err := svc.UpdatePhoneNumber(c.Request.Context(), viewer(c), c.Param("id"), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Phone number updated", n)
	}
}

// DeletePhoneNumberHandler releases a number
func DeletePhoneNumberHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeletePhoneNumber(c.Request.Context(), viewer(c), c.Param("id")); err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Phone number deleted", nil)
	}
}

// ---- calls & analytics ----

func queryInt(c *gin.Context, key string) (int64, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, invalid("%s must be a number", key)
	}
	return n, nil
}

// ListCallsHandler pages through the viewer's calls
func ListCallsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := queryInt(c, "page")
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		limit, err := queryInt(c, "limit")
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		result, err := svc.ListCalls(c.Request.Context(), viewer(c), CallQuery{
			AssistantID: c.Query("assistantId"),
			Status:      c.Query("status"),
			Range:       c.Query("range"),
			Page:        page,
			Limit:       limit,
		})
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", result)
	}
}

// GetCallHandler returns one call
func GetCallHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := svc.GetCall(c.Request.Context(), viewer(c), c.Param("id"))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", call)
	}
}

func analyticsQuery(c *gin.Context) AnalyticsQuery {
	return AnalyticsQuery{
		Range:    c.Query("range"),
		From:     c.Query("from"),
		To:       c.Query("to"),
		Timezone: c.Query("tz"),
		UserID:   c.Query("userId"),
	}
}

// DashboardAnalyticsHandler returns the viewer's dashboard analytics
func DashboardAnalyticsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := analyticsQuery(c)
		q.UserID = ""
		d, err := svc.Dashboard(c.Request.Context(), viewer(c), q)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", d)
	}
}

// CallStatsHandler returns call statistics, from Vapi when live=true
func CallStatsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, _ := strconv.ParseBool(c.Query("live"))
		stats, err := svc.CallStats(c.Request.Context(), viewer(c), c.Query("assistantId"), live)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", stats)
	}
}

// ---- billing ----

// InvoicesHandler lists the viewer's invoices
func InvoicesHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.Invoices(c.Request.Context(), viewer(c))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", list)
	}
}

// PaymentMethodsHandler lists the viewer's payment methods
func PaymentMethodsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.PaymentMethods(c.Request.Context(), viewer(c))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", list)
	}
}

// ---- admin ----

// AdminUsersHandler lists every user
func AdminUsersHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListUsers(c.Request.Context())
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", list)
	}
}

// AdminAssistantsHandler lists every assistant
func AdminAssistantsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListAllAssistants(c.Request.Context())
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", list)
	}
}

// AdminClientsHandler lists every billing client
func AdminClientsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListClients(c.Request.Context())
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", list)
	}
}

// ImportAssistantsHandler imports Vapi assistants for a user
func ImportAssistantsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ImportAssistantsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		result, err := svc.ImportAssistants(c.Request.Context(), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Assistants imported", result)
	}
}

// AssignAssistantHandler moves an assistant to another user
func AssignAssistantHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssignAssistantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON payload: "+err.Error())
			return
		}
		a, err := svc.AssignAssistant(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Assistant assigned", a)
	}
}

// AdminSyncHandler runs the call sync now
func AdminSyncHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.Sync(c.Request.Context(), c.Query("assistantId"))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Sync completed", result)
	}
}

// AdminSyncStatusHandler reports the scheduler state
func AdminSyncStatusHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, "", svc.SyncStatus())
	}
}

// AdminAnalyticsHandler returns analytics across users
func AdminAnalyticsHandler(svc *DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.AdminDashboard(c.Request.Context(), analyticsQuery(c))
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "", d)
	}
}

// ---- webhooks ----

// VapiSecretHeader carries the shared secret configured on the Vapi server URL
const VapiSecretHeader = "x-vapi-secret"

// VapiWebhookHandler handles Vapi server messages
func VapiWebhookHandler(svc *DashboardService, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := svc.config.VapiWebhookSecret; secret != "" {
			got := c.GetHeader(VapiSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				svc.logger.Warn("⚠️  [WEBHOOK] Vapi webhook with bad secret", zap.String("ip", c.ClientIP()))
				c.JSON(http.StatusUnauthorized, Response{Success: false, Message: "invalid webhook secret"})
				return
			}
		}

		var msg vapi.ServerMessage
		if err := c.ShouldBindJSON(&msg); err != nil {
			badRequest(c, "Invalid JSON payload")
			return
		}
		m.WebhookEvent("vapi", msg.TypeLabel())
		svc.logger.Info("🔔 [WEBHOOK] Received Vapi message", zap.String("type", msg.Message.Type))

		inserted, err := svc.ProcessVapiMessage(c.Request.Context(), &msg)
		if errors.Is(err, callsync.ErrUnknownAssistant) {
			// calls of assistants we do not track are acknowledged so Vapi stops retrying
			ok(c, "Assistant not tracked", gin.H{"stored": false})
			return
		}
		if err != nil {
			fail(c, svc.logger, err)
			return
		}
		ok(c, "Webhook processed", gin.H{"type": msg.Message.Type, "stored": inserted})
	}
}
