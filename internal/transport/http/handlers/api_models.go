package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// IdentitySummary describes a minimal view of an identity returned by the API.
type IdentitySummary struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Username     string      `json:"username"`
	Role         domain.Role `json:"role"`
	RegisteredAt time.Time   `json:"registered_at"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Email     string `json:"email" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	BirthDate string `json:"birth_date" binding:"required"`
}

// RegistrationResponse contains the created identity.
type RegistrationResponse struct {
	Identity IdentitySummary `json:"identity"`
	Message  string          `json:"message,omitempty"`
}

// LoginRequest defines the payload for the password login endpoint.
type LoginRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Fingerprint string `json:"fingerprint" binding:"required"`
}

// PasswordChangeRequest replaces the password after re-verifying the current one.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// SessionSummary provides a compact view of a device session.
type SessionSummary struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	IP          string    `json:"ip"`
	UserAgent   *string   `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
	IsCurrent   bool      `json:"is_current,omitempty"`
}

// LoginResponse describes the outcome of a login step. When RequiresTwoFactor
// is set only TemporaryToken is populated and the client must call the
// two-factor completion endpoint.
type LoginResponse struct {
	Token             string           `json:"token,omitempty"`
	TokenType         string           `json:"token_type,omitempty"`
	ExpiresIn         int              `json:"expires_in,omitempty"`
	RequiresTwoFactor bool             `json:"requires_two_factor,omitempty"`
	TemporaryToken    string           `json:"temporary_token,omitempty"`
	Identity          *IdentitySummary `json:"identity,omitempty"`
	Session           *SessionSummary  `json:"session,omitempty"`
	Suspicious        bool             `json:"suspicious,omitempty"`
}

// TwoFactorCompleteRequest finishes a login that required a second factor.
type TwoFactorCompleteRequest struct {
	TemporaryToken string `json:"temporary_token" binding:"required"`
	Code           string `json:"code" binding:"required"`
	Fingerprint    string `json:"fingerprint" binding:"required"`
}

// TwoFactorSetupResponse returns the enrollment secret and recovery codes.
type TwoFactorSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// TwoFactorConfirmRequest confirms a pending two-factor enrollment.
type TwoFactorConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// TwoFactorDisableRequest disables two-factor auth after password re-verification.
type TwoFactorDisableRequest struct {
	Password string `json:"password" binding:"required"`
}

// BackupCodesRequest regenerates recovery codes after password re-verification.
type BackupCodesRequest struct {
	Password string `json:"password" binding:"required"`
}

// BackupCodesResponse carries a freshly generated set of recovery codes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// TwoFactorStatusResponse reports the current two-factor state.
type TwoFactorStatusResponse struct {
	Enabled              bool `json:"enabled"`
	RemainingBackupCodes int  `json:"remaining_backup_codes"`
}

// PasskeyRegistrationOptionsResponse parameterizes the client-side create() call.
// Binary fields are base64url encoded without padding.
type PasskeyRegistrationOptionsResponse struct {
	Challenge            string    `json:"challenge"`
	RelyingPartyID       string    `json:"rp_id"`
	RelyingPartyName     string    `json:"rp_name"`
	ExcludeCredentialIDs []string  `json:"exclude_credential_ids,omitempty"`
	ExpiresAt            time.Time `json:"expires_at"`
}

// PasskeyRegistrationFinishRequest carries the authenticator attestation response.
type PasskeyRegistrationFinishRequest struct {
	Attestation    string   `json:"attestation" binding:"required"`
	ClientDataJSON string   `json:"client_data_json" binding:"required"`
	Label          string   `json:"label"`
	Transports     []string `json:"transports"`
}

// PasskeySummary describes a registered credential.
type PasskeySummary struct {
	CredentialID string     `json:"credential_id"`
	Label        string     `json:"label,omitempty"`
	Transports   []string   `json:"transports,omitempty"`
	SignCount    uint32     `json:"sign_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// PasskeyListResponse wraps all credentials registered to an identity.
type PasskeyListResponse struct {
	Passkeys []PasskeySummary `json:"passkeys"`
	Total    int              `json:"total"`
}

// PasskeyAuthenticationBeginRequest starts a passkey login ceremony.
type PasskeyAuthenticationBeginRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasskeyAuthenticationOptionsResponse parameterizes the client-side get() call.
type PasskeyAuthenticationOptionsResponse struct {
	FlowID             string    `json:"flow_id"`
	Challenge          string    `json:"challenge"`
	RelyingPartyID     string    `json:"rp_id"`
	AllowCredentialIDs []string  `json:"allow_credential_ids"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// PasskeyAuthenticationFinishRequest carries the signed assertion response.
type PasskeyAuthenticationFinishRequest struct {
	FlowID            string `json:"flow_id" binding:"required"`
	CredentialID      string `json:"credential_id" binding:"required"`
	AuthenticatorData string `json:"authenticator_data" binding:"required"`
	ClientDataJSON    string `json:"client_data_json" binding:"required"`
	Signature         string `json:"signature" binding:"required"`
	Fingerprint       string `json:"fingerprint" binding:"required"`
}

// SessionListResponse wraps the caller's active sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionBulkRevokeResponse summarises bulk revocation operations.
type SessionBulkRevokeResponse struct {
	RevokedCount int `json:"revoked_count"`
}

// AntiForgeryTokenResponse returns a freshly minted double-submit token. The
// same value is also set as a cookie.
type AntiForgeryTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
