package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// PasskeyHandler exposes WebAuthn credential management and the passkey login ceremony.
type PasskeyHandler struct {
	auth            *usecase.AuthService
	passkeys        *usecase.PasskeyService
	sessionTokenTTL time.Duration
}

// NewPasskeyHandler constructs PasskeyHandler.
func NewPasskeyHandler(auth *usecase.AuthService, passkeys *usecase.PasskeyService, sessionTokenTTL time.Duration) *PasskeyHandler {
	if sessionTokenTTL <= 0 {
		sessionTokenTTL = 72 * time.Hour
	}
	return &PasskeyHandler{auth: auth, passkeys: passkeys, sessionTokenTTL: sessionTokenTTL}
}

// RegisterRoutes binds passkey routes. Credential management requires a full
// session; the login ceremony is anonymous by nature.
func (h *PasskeyHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	login := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		return append(chain, handler)
	}

	r.POST("/login/passkey/begin", login(h.beginAuthentication)...)
	r.POST("/login/passkey/finish", login(h.finishAuthentication)...)

	group := r.Group("/passkeys", middleware.RequireAuth(h.auth))
	group.POST("/register/begin", h.beginRegistration)
	group.POST("/register/finish", h.finishRegistration)
	group.GET("", h.list)
	group.DELETE("/:credential_id", h.remove)
}

// BeginRegistration godoc
// @Summary Start a passkey registration ceremony
// @Description Issues a single-use challenge and lists already registered credential ids to exclude.
// @Tags Passkeys
// @Produce json
// @Security BearerAuth
// @Success 200 {object} PasskeyRegistrationOptionsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/passkeys/register/begin [post]
func (h *PasskeyHandler) beginRegistration(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	options, err := h.passkeys.BeginRegistration(c.Request.Context(), authCtx.Identity.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to start passkey registration"))
		return
	}

	c.JSON(http.StatusOK, PasskeyRegistrationOptionsResponse{
		Challenge:            encodeBinary(options.Challenge),
		RelyingPartyID:       options.RelyingPartyID,
		RelyingPartyName:     options.RelyingPartyName,
		ExcludeCredentialIDs: encodeBinaryList(options.ExcludeCredentialIDs),
		ExpiresAt:            options.ExpiresAt,
	})
}

// FinishRegistration godoc
// @Summary Complete a passkey registration ceremony
// @Description Verifies the authenticator attestation against the pending challenge and stores the credential.
// @Tags Passkeys
// @Produce json
// @Security BearerAuth
// @Param request body PasskeyRegistrationFinishRequest true "Attestation payload"
// @Success 201 {object} PasskeySummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/passkeys/register/finish [post]
func (h *PasskeyHandler) finishRegistration(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasskeyRegistrationFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	attestation, err := decodeBinary(req.Attestation)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "attestation must be base64url encoded"))
		return
	}

	clientDataJSON, err := decodeBinary(req.ClientDataJSON)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "client data must be base64url encoded"))
		return
	}

	passkey, err := h.passkeys.FinishRegistration(c.Request.Context(), authCtx.Identity.ID, attestation, clientDataJSON, req.Label, req.Transports)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrChallengeExpiredOrMissing, Status: http.StatusBadRequest, Message: "registration challenge expired"},
			{Err: usecase.ErrCeremonyFailed, Status: http.StatusBadRequest, Message: "attestation verification failed"},
			{Err: usecase.ErrPasskeyExists, Status: http.StatusConflict, Message: "credential already registered"},
		}, http.StatusInternalServerError, "failed to register passkey")
		return
	}

	c.JSON(http.StatusCreated, passkeySummary(*passkey))
}

// BeginAuthentication godoc
// @Summary Start a passkey login ceremony
// @Description Issues a challenge for the supplied email. Unknown addresses receive an indistinguishable response.
// @Tags Passkeys
// @Produce json
// @Param request body PasskeyAuthenticationBeginRequest true "Ceremony start payload"
// @Success 200 {object} PasskeyAuthenticationOptionsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login/passkey/begin [post]
func (h *PasskeyHandler) beginAuthentication(c *gin.Context) {
	var req PasskeyAuthenticationBeginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid ceremony payload"))
		return
	}

	options, err := h.passkeys.BeginAuthentication(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to start passkey authentication"))
		return
	}

	allowed := encodeBinaryList(options.AllowCredentialIDs)
	if allowed == nil {
		allowed = []string{}
	}

	c.JSON(http.StatusOK, PasskeyAuthenticationOptionsResponse{
		FlowID:             options.FlowID,
		Challenge:          encodeBinary(options.Challenge),
		RelyingPartyID:     options.RelyingPartyID,
		AllowCredentialIDs: allowed,
		ExpiresAt:          options.ExpiresAt,
	})
}

// FinishAuthentication godoc
// @Summary Complete a passkey login ceremony
// @Description Verifies the signed assertion and issues a full session token.
// @Tags Passkeys
// @Produce json
// @Param request body PasskeyAuthenticationFinishRequest true "Assertion payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login/passkey/finish [post]
func (h *PasskeyHandler) finishAuthentication(c *gin.Context) {
	var req PasskeyAuthenticationFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assertion payload"))
		return
	}

	input, err := decodeAssertion(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "assertion fields must be base64url encoded"))
		return
	}

	result, err := h.auth.PasskeyLogin(c.Request.Context(), input, c.ClientIP(), req.Fingerprint, requestUserAgent(c))
	if err != nil {
		respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse(result, h.sessionTokenTTL))
}

// List godoc
// @Summary List registered passkeys
// @Tags Passkeys
// @Produce json
// @Security BearerAuth
// @Success 200 {object} PasskeyListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/passkeys [get]
func (h *PasskeyHandler) list(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	passkeys, err := h.passkeys.List(c.Request.Context(), authCtx.Identity.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list passkeys"))
		return
	}

	summaries := make([]PasskeySummary, 0, len(passkeys))
	for _, pk := range passkeys {
		summaries = append(summaries, passkeySummary(pk))
	}

	c.JSON(http.StatusOK, PasskeyListResponse{
		Passkeys: summaries,
		Total:    len(summaries),
	})
}

// Remove godoc
// @Summary Remove a registered passkey
// @Tags Passkeys
// @Produce json
// @Security BearerAuth
// @Param credential_id path string true "Base64url encoded credential id"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/passkeys/{credential_id} [delete]
func (h *PasskeyHandler) remove(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	credentialID, err := decodeBinary(c.Param("credential_id"))
	if err != nil || len(credentialID) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid credential id"))
		return
	}

	if err := h.passkeys.Remove(c.Request.Context(), authCtx.Identity.ID, credentialID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPasskeyNotFound, Status: http.StatusNotFound, Message: "passkey not found"},
		}, http.StatusInternalServerError, "failed to remove passkey")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "passkey removed"})
}

func decodeAssertion(req PasskeyAuthenticationFinishRequest) (usecase.PasskeyAssertionInput, error) {
	credentialID, err := decodeBinary(req.CredentialID)
	if err != nil {
		return usecase.PasskeyAssertionInput{}, err
	}

	authenticatorData, err := decodeBinary(req.AuthenticatorData)
	if err != nil {
		return usecase.PasskeyAssertionInput{}, err
	}

	clientDataJSON, err := decodeBinary(req.ClientDataJSON)
	if err != nil {
		return usecase.PasskeyAssertionInput{}, err
	}

	signature, err := decodeBinary(req.Signature)
	if err != nil {
		return usecase.PasskeyAssertionInput{}, err
	}

	return usecase.PasskeyAssertionInput{
		FlowID:            req.FlowID,
		CredentialID:      credentialID,
		AuthenticatorData: authenticatorData,
		ClientDataJSON:    clientDataJSON,
		Signature:         signature,
	}, nil
}

func passkeySummary(pk domain.Passkey) PasskeySummary {
	return PasskeySummary{
		CredentialID: encodeBinary(pk.CredentialID),
		Label:        pk.Label,
		Transports:   pk.Transports,
		SignCount:    pk.SignCount,
		CreatedAt:    pk.CreatedAt,
		LastUsedAt:   pk.LastUsedAt,
	}
}

func encodeBinary(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func encodeBinaryList(items [][]byte) []string {
	if len(items) == 0 {
		return nil
	}
	encoded := make([]string, 0, len(items))
	for _, item := range items {
		encoded = append(encoded, encodeBinary(item))
	}
	return encoded
}

func decodeBinary(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
}
