package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// AntiForgeryHandler mints double-submit tokens for browser clients.
type AntiForgeryHandler struct {
	service  *usecase.AntiForgeryService
	settings config.AntiForgerySettings
}

// NewAntiForgeryHandler constructs AntiForgeryHandler.
func NewAntiForgeryHandler(service *usecase.AntiForgeryService, settings config.AntiForgerySettings) *AntiForgeryHandler {
	if settings.CookieName == "" {
		settings.CookieName = "csrf_token"
	}
	return &AntiForgeryHandler{service: service, settings: settings}
}

// RegisterRoutes binds the token issuing endpoint.
func (h *AntiForgeryHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/csrf", h.issue)
}

// Issue godoc
// @Summary Issue an anti-forgery token
// @Description Mints a double-submit token, sets it as a cookie, and returns the same value in the body for the echo header.
// @Tags Public
// @Produce json
// @Success 200 {object} AntiForgeryTokenResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/csrf [get]
func (h *AntiForgeryHandler) issue(c *gin.Context) {
	var identityID *string
	if id, ok := middleware.GetAuthenticatedIdentityID(c); ok {
		identityID = &id
	}

	token, err := h.service.Issue(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue anti-forgery token"))
		return
	}

	ttl := h.service.TTL()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.settings.CookieName, token.Value, int(ttl.Seconds()), "/", "", false, false)

	c.JSON(http.StatusOK, AntiForgeryTokenResponse{
		Token:     token.Value,
		ExpiresIn: int(ttl.Seconds()),
	})
}
