// Package httpapi exposes the reservation engine over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey      = "auth_claims"
	defaultRequestTimeout = 5 * time.Second
	bearerPrefix          = "Bearer "
)

// Config configures the router.
type Config struct {
	AllowedOrigins []string
	ServiceToken   string
	RequestTimeout time.Duration
}

// Services lists the engine components the handlers call.
type Services struct {
	Guard       *reservation.ConflictGuard
	Coordinator *reservation.Coordinator
	Waitlist    *reservation.WaitlistCoordinator
	Alerts      *reservation.PriceAlertWatcher
	Pricing     *reservation.PricingResolver
	Charters    reservation.CharterStore
}

type httpHandler struct {
	logger         *zap.Logger
	services       Services
	requestTimeout time.Duration
}

// NewRouter builds the gin engine. Customer routes require a TAuth session; webhook and
// operator routes require the shared service token.
func NewRouter(config Config, services Services, validator *sessionvalidator.Validator, logger *zap.Logger) (*gin.Engine, error) {
	if validator == nil {
		return nil, fmt.Errorf("%w: session validator is required", reservation.ErrInvalidServiceConfig)
	}
	if services.Guard == nil || services.Coordinator == nil || services.Waitlist == nil || services.Alerts == nil || services.Pricing == nil || services.Charters == nil {
		return nil, fmt.Errorf("%w: every service is required", reservation.ErrInvalidServiceConfig)
	}
	if strings.TrimSpace(config.ServiceToken) == "" {
		return nil, fmt.Errorf("%w: service token is required", reservation.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	handler := &httpHandler{logger: logger, services: services, requestTimeout: timeout}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))
	api.GET("/availability", handler.handleAvailability)
	api.POST("/quotes", handler.handleQuote)
	api.POST("/bookings", handler.handleStartBooking)
	api.GET("/bookings/:id", handler.handleGetBooking)
	api.POST("/bookings/:id/cancel", handler.handleCancelBooking)
	api.POST("/bookings/:id/payment", handler.handleResumePayment)
	api.POST("/waitlist/join", handler.handleJoinWaitlist)
	api.POST("/waitlist/respond", handler.handleRespondWaitlist)
	api.GET("/waitlist/:id", handler.handleGetWaitlistEntry)
	api.DELETE("/waitlist/:id", handler.handleLeaveWaitlist)
	api.POST("/price-alerts", handler.handleRegisterPriceAlert)
	api.GET("/price-alerts/:id", handler.handleGetPriceAlert)
	api.DELETE("/price-alerts/:id", handler.handleCancelPriceAlert)

	service := router.Group("/")
	service.Use(requireServiceToken(config.ServiceToken))
	service.POST("/webhooks/payments", handler.handlePaymentWebhook)
	service.POST("/internal/calendar/block", handler.handleBlockDate)
	service.PUT("/internal/charters/:id", handler.handlePutCharter)
	service.PUT("/internal/referrals/:code", handler.handlePutReferral)

	return router, nil
}

func requireServiceToken(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		presented := []byte(strings.TrimPrefix(header, bearerPrefix))
		if !strings.HasPrefix(header, bearerPrefix) || subtle.ConstantTimeCompare(presented, expected) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid service token"))
			return
		}
		ctx.Next()
	}
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.requestTimeout)
}

// customerID resolves the session user or writes a 401 and returns false.
func (handler *httpHandler) customerID(ctx *gin.Context) (reservation.CustomerID, bool) {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return reservation.CustomerID{}, false
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return reservation.CustomerID{}, false
	}
	customerID, err := reservation.NewCustomerID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session user"))
		return reservation.CustomerID{}, false
	}
	return customerID, true
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func fieldErrorResponse(code string, message string, field string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"field":   field,
		},
	}
}
