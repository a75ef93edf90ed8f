package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// SessionHandler exposes the per-device session registry.
type SessionHandler struct {
	auth     *usecase.AuthService
	sessions *usecase.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(auth *usecase.AuthService, sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{auth: auth, sessions: sessions}
}

// RegisterRoutes binds session management routes. All of them require a full session.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	group := r.Group("/sessions", middleware.RequireAuth(h.auth))
	group.GET("", h.list)
	group.DELETE("/:session_id", h.revoke)
	group.POST("/revoke-others", h.revokeOthers)
	group.POST("/revoke-all", h.revokeAll)
}

// List godoc
// @Summary List active sessions
// @Description Returns every live session for the caller, flagging the one bound to the presented token.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions [get]
func (h *SessionHandler) list(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.List(c.Request.Context(), authCtx.Identity.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, sessionSummary(session, authCtx.Session.ID))
	}

	c.JSON(http.StatusOK, SessionListResponse{
		Sessions: summaries,
		Total:    len(summaries),
	})
}

// Revoke godoc
// @Summary Revoke a single session
// @Description Removes the named session. Revoking an already revoked session succeeds.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param session_id path string true "Session id"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions/{session_id} [delete]
func (h *SessionHandler) revoke(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := c.Param("session_id")
	if err := h.sessions.Revoke(c.Request.Context(), authCtx.Identity.ID, sessionID, usecase.RevokeReasonLogout); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session revoked"})
}

// RevokeOthers godoc
// @Summary Revoke all sessions except the current one
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionBulkRevokeResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions/revoke-others [post]
func (h *SessionHandler) revokeOthers(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	removed, err := h.sessions.RevokeAllExcept(c.Request.Context(), authCtx.Identity.ID, authCtx.Session.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, SessionBulkRevokeResponse{RevokedCount: removed})
}

// RevokeAll godoc
// @Summary Revoke every session including the current one
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionBulkRevokeResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions/revoke-all [post]
func (h *SessionHandler) revokeAll(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	removed, err := h.sessions.RevokeAll(c.Request.Context(), authCtx.Identity.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, SessionBulkRevokeResponse{RevokedCount: removed})
}
