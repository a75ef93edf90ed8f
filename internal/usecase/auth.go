package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// PurposePendingTwoFactor tags the temporary token bridging the two-step login.
const PurposePendingTwoFactor = "pending-2fa"

const minimumAge = 18

// Login methods recorded on success events.
const (
	LoginMethodPassword   = "password"
	LoginMethodTwoFactor  = "2fa"
	LoginMethodBackupCode = "backup_code"
	LoginMethodPasskey    = "passkey"
)

var (
	// ErrInvalidCredentials collapses unknown email and wrong password into one
	// kind to avoid account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBanned indicates the identity is banned.
	ErrAccountBanned = errors.New("account banned")
	// ErrAccountSuspended indicates a suspension is still in force.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrUnderage indicates the age gate tripped; the identity is banned as a
	// side effect.
	ErrUnderage = errors.New("account holder is underage")
	// ErrTokenInvalid indicates the bearer token is malformed or its signature
	// does not verify.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates the bearer token is past its TTL.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenPurposeMismatch indicates a temporary token was presented where a
	// full session token is required, or vice versa.
	ErrTokenPurposeMismatch = errors.New("token purpose mismatch")
	// ErrSessionRevoked indicates the token's session no longer exists in the
	// registry.
	ErrSessionRevoked = errors.New("session revoked")
)

// AccountBannedError carries the ban reason alongside ErrAccountBanned.
type AccountBannedError struct {
	Reason string
}

func (e *AccountBannedError) Error() string {
	if e.Reason == "" {
		return ErrAccountBanned.Error()
	}
	return fmt.Sprintf("account banned: %s", e.Reason)
}

func (e *AccountBannedError) Unwrap() error { return ErrAccountBanned }

// AccountSuspendedError carries the suspension window alongside ErrAccountSuspended.
type AccountSuspendedError struct {
	Until  time.Time
	Reason string
}

func (e *AccountSuspendedError) Error() string {
	return fmt.Sprintf("account suspended until %s", e.Until.Format(time.RFC3339))
}

func (e *AccountSuspendedError) Unwrap() error { return ErrAccountSuspended }

// UnderageError carries the computed age alongside ErrUnderage.
type UnderageError struct {
	Age int
}

func (e *UnderageError) Error() string {
	return fmt.Sprintf("account holder is underage: age %d", e.Age)
}

func (e *UnderageError) Unwrap() error { return ErrUnderage }

func banError(identity *domain.Identity) error {
	reason := ""
	if identity.BanReason != nil {
		reason = *identity.BanReason
	}
	return &AccountBannedError{Reason: reason}
}

func suspensionError(identity *domain.Identity) error {
	err := &AccountSuspendedError{}
	if identity.SuspendedUntil != nil {
		err.Until = *identity.SuspendedUntil
	}
	if identity.SuspendedReason != nil {
		err.Reason = *identity.SuspendedReason
	}
	return err
}

// LoginInput carries the credentials and device context of a login attempt.
type LoginInput struct {
	Email       string
	Password    string
	IP          string
	Fingerprint string
	UserAgent   *string
}

// LoginResult is the outcome of a successful login step. When
// RequiresTwoFactor is set only TemporaryToken is populated and no session
// exists yet.
type LoginResult struct {
	Identity          domain.Identity
	Token             string
	TemporaryToken    string
	RequiresTwoFactor bool
	Session           *domain.Session
	Suspicious        bool
}

// AuthContext is the verified caller attached to an authenticated request.
type AuthContext struct {
	Identity domain.Identity
	Session  domain.Session
}

// AuthService sequences the end-to-end sign-in flows and guards every
// authenticated request.
type AuthService struct {
	cfg        *config.AppConfig
	identities port.IdentityRepository
	sessions   *SessionService
	twoFactor  *TwoFactorService
	passkeys   *PasskeyService
	suspicion  *SuspicionService
	tokens     *security.TokenManager
	events     port.EventPublisher
	now        func() time.Time
}

// NewAuthService constructs the login orchestrator.
func NewAuthService(
	cfg *config.AppConfig,
	identities port.IdentityRepository,
	sessions *SessionService,
	twoFactor *TwoFactorService,
	passkeys *PasskeyService,
	suspicion *SuspicionService,
	tokens *security.TokenManager,
	events port.EventPublisher,
) *AuthService {
	return &AuthService{
		cfg:        cfg,
		identities: identities,
		sessions:   sessions,
		twoFactor:  twoFactor,
		passkeys:   passkeys,
		suspicion:  suspicion,
		tokens:     tokens,
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login verifies the password and either completes the login or, when 2FA is
// enabled, stops after issuing a purpose-scoped temporary token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.Email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	identity, err := s.identities.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	ok, err := security.VerifyPassword(input.Password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordFailure(ctx, identity.ID, input.IP, input.Fingerprint, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if err := s.enforceAccountGates(ctx, identity); err != nil {
		s.recordFailure(ctx, identity.ID, input.IP, input.Fingerprint, gateFailureReason(err))
		return nil, err
	}

	cfg, err := s.identities.GetTwoFactor(ctx, identity.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load two-factor config: %w", err)
	}
	if cfg != nil && cfg.Enabled {
		temporary, err := s.tokens.IssueTemporary(identity.ID, PurposePendingTwoFactor, s.cfg.JWT.TemporaryTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue temporary token: %w", err)
		}
		return &LoginResult{
			Identity:          *identity,
			TemporaryToken:    temporary,
			RequiresTwoFactor: true,
		}, nil
	}

	return s.completeLogin(ctx, identity, LoginMethodPassword, input.IP, input.Fingerprint, input.UserAgent)
}

// CompleteTwoFactor finishes the two-step login: it verifies the temporary
// token's purpose, checks the submitted code, and runs the same tail as a
// plain password login.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, temporaryToken, code, ip, fingerprint string, userAgent *string) (*LoginResult, error) {
	claims, err := s.verifyToken(temporaryToken)
	if err != nil {
		return nil, err
	}
	if !claims.IsTemporary() || claims.Purpose != PurposePendingTwoFactor {
		return nil, ErrTokenPurposeMismatch
	}

	identity, err := s.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if err := s.enforceAccountGates(ctx, identity); err != nil {
		s.recordFailure(ctx, identity.ID, ip, fingerprint, gateFailureReason(err))
		return nil, err
	}

	verification, err := s.twoFactor.VerifyLogin(ctx, identity.ID, code)
	if err != nil {
		if errors.Is(err, ErrTwoFactorCodeInvalid) || errors.Is(err, ErrBackupCodeExhausted) {
			s.recordFailure(ctx, identity.ID, ip, fingerprint, "two_factor_code_invalid")
		}
		return nil, err
	}

	method := LoginMethodTwoFactor
	if verification.UsedBackupCode {
		method = LoginMethodBackupCode
	}

	return s.completeLogin(ctx, identity, method, ip, fingerprint, userAgent)
}

// PasskeyLogin finishes an authentication ceremony and runs the standard
// login tail.
func (s *AuthService) PasskeyLogin(ctx context.Context, assertion PasskeyAssertionInput, ip, fingerprint string, userAgent *string) (*LoginResult, error) {
	identity, _, err := s.passkeys.FinishAuthentication(ctx, assertion)
	if err != nil {
		return nil, err
	}

	if err := s.enforceAccountGates(ctx, identity); err != nil {
		s.recordFailure(ctx, identity.ID, ip, fingerprint, gateFailureReason(err))
		return nil, err
	}

	return s.completeLogin(ctx, identity, LoginMethodPasskey, ip, fingerprint, userAgent)
}

// Authorize validates a bearer token for an authenticated request: signature
// and expiry, session liveness in the registry, then the account gates. The
// session's last-active timestamp is refreshed as a side effect.
func (s *AuthService) Authorize(ctx context.Context, token string) (*AuthContext, error) {
	claims, err := s.verifyToken(token)
	if err != nil {
		return nil, err
	}
	if claims.IsTemporary() {
		return nil, ErrTokenPurposeMismatch
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}
	if session.IdentityID != claims.IdentityID {
		return nil, ErrSessionRevoked
	}

	identity, err := s.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if err := s.enforceAccountGates(ctx, identity); err != nil {
		return nil, err
	}

	if err := s.sessions.Touch(ctx, identity.ID, session.ID); err != nil {
		return nil, err
	}

	return &AuthContext{Identity: *identity, Session: *session}, nil
}

// Logout revokes the caller's session.
func (s *AuthService) Logout(ctx context.Context, identityID, sessionID string) error {
	return s.sessions.Revoke(ctx, identityID, sessionID, RevokeReasonLogout)
}

// ChangePassword replaces the caller's password after re-verifying the
// current one. Concurrent changes race last-write-wins; the loser's new
// password simply stops working.
func (s *AuthService) ChangePassword(ctx context.Context, identity domain.Identity, currentPassword, newPassword string) error {
	ok, err := security.VerifyPassword(currentPassword, identity.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	validator := security.DefaultPasswordValidator(identity.Email, identity.Username)
	if err := validator.Validate(newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.identities.UpdatePassword(ctx, identity.ID, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

// enforceAccountGates runs the age gate, ban check, and suspension check, in
// that order. The age gate runs on every authenticated request because a
// corrected birth date may move the identity across the threshold between
// requests. An expired suspension is lifted in place.
func (s *AuthService) enforceAccountGates(ctx context.Context, identity *domain.Identity) error {
	now := s.now().UTC()

	if age := identity.AgeAt(now); age < minimumAge {
		if identity.Ban(domain.BanReasonUnderage) {
			if err := s.identities.SetBanned(ctx, identity.ID, domain.BanReasonUnderage); err != nil {
				return fmt.Errorf("ban underage identity: %w", err)
			}
			s.publishBanned(ctx, identity.ID, domain.BanReasonUnderage, &age)
		}
		return &UnderageError{Age: age}
	}

	if identity.Banned {
		return banError(identity)
	}

	if identity.SuspendedUntil != nil {
		if identity.IsSuspended(now) {
			return suspensionError(identity)
		}
		if identity.ClearExpiredSuspension(now) {
			if err := s.identities.ClearSuspension(ctx, identity.ID); err != nil {
				return fmt.Errorf("clear suspension: %w", err)
			}
		}
	}

	return nil
}

// completeLogin is the shared tail of every successful flow: classify
// suspicion, create the session, issue the full token, record history, emit
// the success event.
func (s *AuthService) completeLogin(ctx context.Context, identity *domain.Identity, method, ip, fingerprint string, userAgent *string) (*LoginResult, error) {
	suspicious, err := s.suspicion.Classify(ctx, identity.ID, ip, fingerprint)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, identity.ID, fingerprint, ip, userAgent)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(identity.ID, session.ID, s.cfg.JWT.SessionTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	now := s.now().UTC()
	if err := s.identities.RecordLogin(ctx, identity.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	entry := domain.LoginHistoryEntry{
		IP:          ip,
		Fingerprint: fingerprint,
		Succeeded:   true,
		At:          now,
	}
	if err := s.identities.AppendLoginHistory(ctx, identity.ID, entry, s.cfg.Session.HistoryLimit); err != nil {
		return nil, fmt.Errorf("append login history: %w", err)
	}

	// A non-suspicious login vouches for its device. The record outlives the
	// history ring, so a familiar device stays known after its history entries
	// rotate out.
	if !suspicious && fingerprint != "" {
		device := domain.TrustedDevice{Fingerprint: fingerprint, AddedAt: now}
		if err := s.identities.AddTrustedDevice(ctx, identity.ID, device); err != nil {
			return nil, fmt.Errorf("record trusted device: %w", err)
		}
	}

	if s.events != nil {
		_ = s.events.PublishLoginSucceeded(ctx, domain.LoginSucceededEvent{
			EventID:     uuid.NewString(),
			IdentityID:  identity.ID,
			SessionID:   session.ID,
			Method:      method,
			IP:          ip,
			Fingerprint: fingerprint,
			Suspicious:  suspicious,
			At:          now,
		})
	}

	return &LoginResult{
		Identity:   *identity,
		Token:      token,
		Session:    session,
		Suspicious: suspicious,
	}, nil
}

func (s *AuthService) verifyToken(token string) (*security.TokenClaims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}
	return claims, nil
}

// recordFailure appends a failed login entry and emits the failure event.
// Failed-attempt bookkeeping never overrides the login outcome.
func (s *AuthService) recordFailure(ctx context.Context, identityID, ip, fingerprint, reason string) {
	now := s.now().UTC()
	entry := domain.LoginHistoryEntry{
		IP:            ip,
		Fingerprint:   fingerprint,
		Succeeded:     false,
		FailureReason: &reason,
		At:            now,
	}
	_ = s.identities.AppendLoginHistory(ctx, identityID, entry, s.cfg.Session.HistoryLimit)

	if s.events != nil {
		_ = s.events.PublishLoginFailed(ctx, domain.LoginFailedEvent{
			EventID:    uuid.NewString(),
			IdentityID: identityID,
			Reason:     reason,
			IP:         ip,
			At:         now,
		})
	}
}

func (s *AuthService) publishBanned(ctx context.Context, identityID, reason string, age *int) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishIdentityBanned(ctx, domain.IdentityBannedEvent{
		EventID:    uuid.NewString(),
		IdentityID: identityID,
		Reason:     reason,
		Age:        age,
		BannedAt:   s.now().UTC(),
	})
}

func gateFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnderage):
		return "underage"
	case errors.Is(err, ErrAccountBanned):
		return "account_banned"
	case errors.Is(err, ErrAccountSuspended):
		return "account_suspended"
	default:
		return "account_gate"
	}
}
