package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openeduhub/duplicate-detection/cache"
	apperrors "github.com/openeduhub/duplicate-detection/errors"
)

// AdminHandler serves the key-protected maintenance endpoints.
type AdminHandler struct {
	responseCache *cache.Cache
	apiKey        string
	logger        *zap.Logger
}

// NewAdminHandler creates the admin handler. An empty apiKey disables
// the endpoints rather than leaving them open.
func NewAdminHandler(responseCache *cache.Cache, apiKey string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		responseCache: responseCache,
		apiKey:        apiKey,
		logger:        logger,
	}
}

// ClearCache drops every cached detection response.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if h.apiKey == "" {
		respondWithError(c, http.StatusInternalServerError,
			apperrors.Wrap(apperrors.ErrForbidden, "ADMIN_API_KEY not configured"),
			"Admin endpoints are not configured", h.logger)
		return
	}

	provided := c.GetHeader("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) != 1 {
		h.logger.Warn("Rejected admin request with bad key", zap.String("client_ip", c.ClientIP()))
		respondWithClientError(c, http.StatusForbidden, "Invalid admin key")
		return
	}

	removed := h.responseCache.Purge()
	h.logger.Info("Cleared detection cache", zap.Int("entries_removed", removed))
	c.JSON(http.StatusOK, gin.H{"entries_removed": removed})
}
