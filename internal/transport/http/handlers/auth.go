package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

const birthDateLayout = "2006-01-02"

// AuthHandler exposes registration and login endpoints.
type AuthHandler struct {
	auth            *usecase.AuthService
	registration    *usecase.RegistrationService
	sessionTokenTTL time.Duration
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithRegistrationService injects the registration service dependency.
func WithRegistrationService(registration *usecase.RegistrationService) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.registration = registration
	}
}

// WithSessionTokenTTL sets the advertised token lifetime in login responses.
func WithSessionTokenTTL(ttl time.Duration) AuthHandlerOption {
	return func(h *AuthHandler) {
		if ttl > 0 {
			h.sessionTokenTTL = ttl
		}
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:            auth,
		sessionTokenTTL: 72 * time.Hour,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the login endpoints.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	r.POST("/register", h.register)

	login := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		return append(chain, handler)
	}

	r.POST("/login", login(h.login)...)
	r.POST("/login/2fa", login(h.completeTwoFactor)...)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
	r.POST("/password", middleware.RequireAuth(h.auth), h.changePassword)
	r.GET("/me", middleware.RequireAuth(h.auth), h.me)
}

// Register godoc
// @Summary Register a new identity
// @Description Creates a new identity with the supplied credentials and birth date.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request payload"
// @Success 201 {object} RegistrationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	birthDate, err := time.Parse(birthDateLayout, strings.TrimSpace(req.BirthDate))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "birth date must use YYYY-MM-DD"))
		return
	}

	identity, err := h.registration.Register(c.Request.Context(), usecase.RegistrationInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		BirthDate: birthDate,
	})
	if err != nil {
		var validation *security.PasswordValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, validation.Message))
			return
		}

		if errors.Is(err, usecase.ErrUnderage) {
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "account does not meet the minimum age requirement"))
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIdentityExists, Status: http.StatusConflict, Message: "email or username already registered"},
			{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "invalid email address"},
			{Err: usecase.ErrInvalidUsername, Status: http.StatusBadRequest, Message: "invalid username"},
			{Err: usecase.ErrInvalidBirthDate, Status: http.StatusBadRequest, Message: "invalid birth date"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		Identity: identitySummary(*identity),
		Message:  "registration complete",
	})
}

// Login godoc
// @Summary Authenticate with email and password
// @Description Verifies credentials and either issues a session token or requests a second factor.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		IP:          c.ClientIP(),
		Fingerprint: req.Fingerprint,
		UserAgent:   requestUserAgent(c),
	})
	if err != nil {
		respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse(result, h.sessionTokenTTL))
}

// CompleteTwoFactor godoc
// @Summary Complete a login pending a second factor
// @Description Exchanges a temporary token plus a TOTP or backup code for a full session.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TwoFactorCompleteRequest true "Two-factor completion payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login/2fa [post]
func (h *AuthHandler) completeTwoFactor(c *gin.Context) {
	var req TwoFactorCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid two-factor payload"))
		return
	}

	result, err := h.auth.CompleteTwoFactor(c.Request.Context(), req.TemporaryToken, req.Code, c.ClientIP(), req.Fingerprint, requestUserAgent(c))
	if err != nil {
		respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse(result, h.sessionTokenTTL))
}

// Logout godoc
// @Summary Terminate the current session
// @Description Revokes the session bound to the presented token. Repeated calls succeed.
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), authCtx.Identity.ID, authCtx.Session.ID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Description Replaces the password after verifying the current one. Existing sessions stay valid.
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PasswordChangeRequest true "Password change payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/password [post]
func (h *AuthHandler) changePassword(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), authCtx.Identity, req.CurrentPassword, req.NewPassword); err != nil {
		var validation *security.PasswordValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, validation.Message))
			return
		}
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid password"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "password change failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

// Me godoc
// @Summary Return the authenticated identity
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} IdentitySummary
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, identitySummary(authCtx.Identity))
}

// respondLoginError maps login flow failures onto HTTP statuses without
// distinguishing unknown accounts from wrong passwords.
func respondLoginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrTwoFactorCodeInvalid):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
	case errors.Is(err, usecase.ErrBackupCodeExhausted):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "backup code already used"))
	case errors.Is(err, usecase.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "temporary token expired"))
	case errors.Is(err, usecase.ErrTokenPurposeMismatch),
		errors.Is(err, usecase.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid token"))
	case errors.Is(err, usecase.ErrTwoFactorNotEnabled):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "two-factor authentication is not enabled"))
	case errors.Is(err, usecase.ErrUnderage),
		errors.Is(err, usecase.ErrAccountBanned):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "account banned"))
	case errors.Is(err, usecase.ErrAccountSuspended):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "account suspended"))
	case errors.Is(err, usecase.ErrChallengeExpiredOrMissing):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "ceremony challenge expired"))
	case errors.Is(err, usecase.ErrReplayDetected),
		errors.Is(err, usecase.ErrCeremonyFailed),
		errors.Is(err, usecase.ErrPasskeyNotFound):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "passkey authentication failed"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "login failed"))
	}
}

func loginResponse(result *usecase.LoginResult, ttl time.Duration) LoginResponse {
	if result.RequiresTwoFactor {
		return LoginResponse{
			RequiresTwoFactor: true,
			TemporaryToken:    result.TemporaryToken,
		}
	}

	summary := identitySummary(result.Identity)
	resp := LoginResponse{
		Token:      result.Token,
		TokenType:  "Bearer",
		ExpiresIn:  int(ttl.Seconds()),
		Identity:   &summary,
		Suspicious: result.Suspicious,
	}

	if result.Session != nil {
		session := sessionSummary(*result.Session, result.Session.ID)
		resp.Session = &session
	}

	return resp
}

func identitySummary(identity domain.Identity) IdentitySummary {
	return IdentitySummary{
		ID:           identity.ID,
		Email:        identity.Email,
		Username:     identity.Username,
		Role:         identity.Role,
		RegisteredAt: identity.RegisteredAt,
	}
}

func sessionSummary(session domain.Session, currentID string) SessionSummary {
	return SessionSummary{
		ID:          session.ID,
		Fingerprint: session.Fingerprint,
		IP:          session.IP,
		UserAgent:   session.UserAgent,
		CreatedAt:   session.CreatedAt,
		LastActive:  session.LastActive,
		IsCurrent:   session.ID == currentID,
	}
}

func requestUserAgent(c *gin.Context) *string {
	ua := c.Request.UserAgent()
	if ua == "" {
		return nil
	}
	return &ua
}
