package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// maxWebhookBody ограничивает размер тела вебхука; события провайдера
// существенно меньше.
const maxWebhookBody = 1 << 20

// handleBillingWebhook принимает события провайдера биллинга.
// Невалидная подпись — 403, нечитаемое событие — 400, успех и дубликат — 202
// (провайдер не должен ретраить то, что уже учтено).
func (h *Handler) handleBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Failed to read request body"})
		return
	}

	result, err := h.reconciler.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSignature):
			c.JSON(http.StatusForbidden, APIError{Message: "Invalid webhook signature"})
		case errors.Is(err, models.ErrMalformedEvent):
			c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		default:
			// Ошибка хранилища: провайдер повторит доставку позже.
			h.logger.Error("Webhook processing failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, APIError{Message: "Event processing failed, retry later"})
		}
		return
	}

	c.JSON(http.StatusAccepted, result)
}

type checkoutRequest struct {
	PriceID string `json:"priceId" binding:"required"`
}

func (h *Handler) createCheckoutSession(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	url, err := h.checkout.CreateSession(c.Request.Context(), userID, req.PriceID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"checkoutUrl": url})
}

func (h *Handler) startTrial(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	sub, err := h.checkout.StartTrial(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}
