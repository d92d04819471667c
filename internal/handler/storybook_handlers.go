package handler

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storybook-server/internal/models"
	"storybook-server/internal/service"
)

// createStorybookRequest — тело запроса на создание книжки. Рисунок
// передается data-URL'ом (data:image/png;base64,...).
type createStorybookRequest struct {
	Title       string `json:"title" binding:"required"`
	AuthorName  string `json:"authorName"`
	Description string `json:"description" binding:"required"`
	Language    string `json:"language" binding:"required"`
	Drawing     string `json:"drawing" binding:"required"`
}

func (h *Handler) createStorybook(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	var req createStorybookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	drawingData, drawingType, err := decodeDataURL(req.Drawing)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}

	detail, err := h.storybooks.Create(c.Request.Context(), userID, service.CreateStorybookRequest{
		Title:       req.Title,
		AuthorName:  req.AuthorName,
		Description: req.Description,
		Language:    req.Language,
		DrawingData: drawingData,
		DrawingType: drawingType,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) listStorybooks(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	storybooks, err := h.storybooks.List(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if storybooks == nil {
		storybooks = []models.Storybook{}
	}
	c.JSON(http.StatusOK, gin.H{"storybooks": storybooks})
}

func (h *Handler) getStorybook(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	detail, err := h.storybooks.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) deleteStorybook(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	if err := h.storybooks.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getQuota(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	ent, err := h.entitlements.Snapshot(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ent)
}

// decodeDataURL разбирает data-URL рисунка и возвращает байты и content type.
func decodeDataURL(dataURL string) ([]byte, string, error) {
	const prefix = "data:"
	if !strings.HasPrefix(dataURL, prefix) {
		return nil, "", fmt.Errorf("%w: drawing must be a data URL", models.ErrInvalidInput)
	}
	meta, payload, found := strings.Cut(dataURL[len(prefix):], ",")
	if !found {
		return nil, "", fmt.Errorf("%w: malformed drawing data URL", models.ErrInvalidInput)
	}
	contentType, _, _ := strings.Cut(meta, ";")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: drawing must be an image, got %q", models.ErrInvalidInput, contentType)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: drawing is not valid base64: %v", models.ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: drawing is empty", models.ErrInvalidInput)
	}
	return data, contentType, nil
}
