package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/arklim/social-platform-auth/internal/usecase"
	"github.com/gin-gonic/gin"
)

const authContextKey = "auth_context"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the Authorization header and resolves the calling identity.
// Authorization re-checks account state and session liveness on every request, so
// a revoked session or a freshly banned identity loses access immediately.
func RequireAuth(authService *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing or malformed authorization header"))
			return
		}

		authCtx, err := authService.Authorize(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session token expired"))
			case errors.Is(err, usecase.ErrTokenPurposeMismatch):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "temporary token cannot access this resource"))
			case errors.Is(err, usecase.ErrSessionRevoked):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session revoked"))
			case errors.Is(err, usecase.ErrTokenInvalid):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid session token"))
			case errors.Is(err, usecase.ErrUnderage),
				errors.Is(err, usecase.ErrAccountBanned):
				c.AbortWithStatusJSON(http.StatusForbidden,
					newErrorResponse(c, "account banned"))
			case errors.Is(err, usecase.ErrAccountSuspended):
				c.AbortWithStatusJSON(http.StatusForbidden,
					newErrorResponse(c, "account suspended"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		// Store identity information in context
		c.Set(IdentityIDKey, authCtx.Identity.ID)
		c.Set(authContextKey, authCtx)

		// Update request context with identity ID
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.IdentityID = authCtx.Identity.ID
		}

		c.Next()
	}
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

// GetAuthContext retrieves the resolved identity and session from context (helper for handlers)
func GetAuthContext(c *gin.Context) (*usecase.AuthContext, bool) {
	val, exists := c.Get(authContextKey)
	if !exists {
		return nil, false
	}

	authCtx, ok := val.(*usecase.AuthContext)
	if !ok || authCtx == nil {
		return nil, false
	}

	return authCtx, true
}

// GetAuthenticatedIdentityID retrieves the identity ID from context (helper for handlers)
func GetAuthenticatedIdentityID(c *gin.Context) (string, bool) {
	identityID, exists := c.Get(IdentityIDKey)
	if !exists {
		return "", false
	}

	if id, ok := identityID.(string); ok {
		return id, true
	}

	return "", false
}
