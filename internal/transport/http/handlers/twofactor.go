package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// TwoFactorHandler exposes TOTP enrollment and recovery code management.
type TwoFactorHandler struct {
	auth      *usecase.AuthService
	twoFactor *usecase.TwoFactorService
}

// NewTwoFactorHandler constructs TwoFactorHandler.
func NewTwoFactorHandler(auth *usecase.AuthService, twoFactor *usecase.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{auth: auth, twoFactor: twoFactor}
}

// RegisterRoutes binds two-factor management routes. All of them require a full session.
func (h *TwoFactorHandler) RegisterRoutes(r *gin.RouterGroup) {
	group := r.Group("/2fa", middleware.RequireAuth(h.auth))
	group.POST("/setup", h.beginSetup)
	group.POST("/confirm", h.confirmSetup)
	group.POST("/disable", h.disable)
	group.POST("/backup-codes", h.regenerateBackupCodes)
	group.GET("/status", h.status)
}

// BeginSetup godoc
// @Summary Start TOTP enrollment
// @Description Generates a shared secret, provisioning URI, and a fresh set of backup codes. Enrollment stays pending until confirmed.
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TwoFactorSetupResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/setup [post]
func (h *TwoFactorHandler) beginSetup(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	enrollment, err := h.twoFactor.BeginSetup(c.Request.Context(), authCtx.Identity)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorAlreadyEnabled, Status: http.StatusConflict, Message: "two-factor authentication already enabled"},
		}, http.StatusInternalServerError, "failed to start two-factor setup")
		return
	}

	c.JSON(http.StatusOK, TwoFactorSetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     enrollment.BackupCodes,
	})
}

// ConfirmSetup godoc
// @Summary Confirm TOTP enrollment
// @Description Activates two-factor authentication once the submitted code proves the authenticator was provisioned.
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Param request body TwoFactorConfirmRequest true "Confirmation payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/confirm [post]
func (h *TwoFactorHandler) confirmSetup(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirmation payload"))
		return
	}

	if err := h.twoFactor.ConfirmSetup(c.Request.Context(), authCtx.Identity.ID, req.Code); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorSetupRequired, Status: http.StatusBadRequest, Message: "no pending two-factor setup"},
			{Err: usecase.ErrTwoFactorCodeInvalid, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "failed to confirm two-factor setup")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication enabled"})
}

// Disable godoc
// @Summary Disable two-factor authentication
// @Description Removes the TOTP configuration after re-verifying the account password.
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Param request body TwoFactorDisableRequest true "Disable payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/disable [post]
func (h *TwoFactorHandler) disable(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorDisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid disable payload"))
		return
	}

	if err := h.twoFactor.Disable(c.Request.Context(), authCtx.Identity, req.Password); err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid password"))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorNotEnabled, Status: http.StatusBadRequest, Message: "two-factor authentication is not enabled"},
		}, http.StatusInternalServerError, "failed to disable two-factor authentication")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication disabled"})
}

// RegenerateBackupCodes godoc
// @Summary Regenerate backup codes
// @Description Replaces all recovery codes with a fresh set after password re-verification. Previously issued codes stop working.
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Param request body BackupCodesRequest true "Regeneration payload"
// @Success 200 {object} BackupCodesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/backup-codes [post]
func (h *TwoFactorHandler) regenerateBackupCodes(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req BackupCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid regeneration payload"))
		return
	}

	codes, err := h.twoFactor.RegenerateBackupCodes(c.Request.Context(), authCtx.Identity, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid password"))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorNotEnabled, Status: http.StatusBadRequest, Message: "two-factor authentication is not enabled"},
		}, http.StatusInternalServerError, "failed to regenerate backup codes")
		return
	}

	c.JSON(http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// Status godoc
// @Summary Report two-factor state
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TwoFactorStatusResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/status [get]
func (h *TwoFactorHandler) status(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	enabled, remaining, err := h.twoFactor.Status(c.Request.Context(), authCtx.Identity.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load two-factor status"))
		return
	}

	c.JSON(http.StatusOK, TwoFactorStatusResponse{
		Enabled:              enabled,
		RemainingBackupCodes: remaining,
	})
}
