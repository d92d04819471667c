package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storybook-server/internal/billing"
	"storybook-server/internal/entitlement"
	"storybook-server/internal/middleware"
	"storybook-server/internal/models"
	"storybook-server/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// Handler обрабатывает HTTP запросы сервера книжек.
type Handler struct {
	storybooks   *service.StorybookService
	entitlements *entitlement.Engine
	checkout     *billing.CheckoutService
	reconciler   *billing.Reconciler
	verifier     *middleware.JWTVerifier
	logger       *zap.Logger
}

// NewHandler создает Handler.
func NewHandler(
	storybooks *service.StorybookService,
	entitlements *entitlement.Engine,
	checkout *billing.CheckoutService,
	reconciler *billing.Reconciler,
	jwtSecret string,
	logger *zap.Logger,
) (*Handler, error) {
	verifier, err := middleware.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		return nil, err
	}
	return &Handler{
		storybooks:   storybooks,
		entitlements: entitlements,
		checkout:     checkout,
		reconciler:   reconciler,
		verifier:     verifier,
		logger:       logger.Named("Handler"),
	}, nil
}

// NewRouter собирает Gin-роутер со всеми middleware и маршрутами.
func (h *Handler) NewRouter(allowOrigins []string, logLevel string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if logLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ZapLoggingMiddleware(h.logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(allowOrigins) > 0 {
		corsConfig.AllowOrigins = allowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Вебхук биллинга аутентифицируется подписью провайдера, не JWT.
	router.POST("/webhooks/billing", h.handleBillingWebhook)

	api := router.Group("/api", middleware.AuthMiddleware(h.verifier, h.logger))
	{
		api.POST("/storybooks", h.createStorybook)
		api.GET("/storybooks", h.listStorybooks)
		api.GET("/storybooks/:id", h.getStorybook)
		api.DELETE("/storybooks/:id", h.deleteStorybook)

		api.GET("/me/quota", h.getQuota)

		api.POST("/billing/checkout", h.createCheckoutSession)
		api.POST("/billing/trial", h.startTrial)
	}

	return router
}

// userIDFromContext извлекает идентификатор пользователя, установленный
// AuthMiddleware.
func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.ContextUserIDKey)
	if !ok {
		return "", false
	}
	userID, ok := v.(string)
	return userID, ok && userID != ""
}

// handleServiceError транслирует ошибки сервисного слоя в HTTP статусы.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrTokenInvalid):
		statusCode = http.StatusUnauthorized
		apiErr = APIError{Message: "Unauthorized"}
	case errors.Is(err, models.ErrQuotaExceeded):
		statusCode = http.StatusForbidden
		apiErr = APIError{Message: err.Error(), Reason: models.QuotaReason(err)}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found or access denied"}
	case errors.Is(err, models.ErrConflict):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrContentContract):
		// Модель вернула текст, нарушающий контракт. Повтор того же запроса
		// может дать валидный результат.
		statusCode = http.StatusBadGateway
		apiErr = APIError{Message: "Story generation produced invalid output, please retry"}
	case errors.Is(err, models.ErrFulfillmentIncomplete), errors.Is(err, service.ErrAIGenerationFailed):
		statusCode = http.StatusBadGateway
		apiErr = APIError{Message: "Story generation failed, please retry"}
	case errors.Is(err, models.ErrPersistenceFailed):
		// Хранилище за REST — такой же даунстрим, как провайдеры генерации.
		statusCode = http.StatusBadGateway
		apiErr = APIError{Message: "Failed to save storybook"}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}

	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	c.JSON(statusCode, apiErr)
}
