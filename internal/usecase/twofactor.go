package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository"
)

var (
	// ErrTwoFactorNotEnabled indicates the identity has no active TOTP config.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrTwoFactorAlreadyEnabled indicates setup was requested while 2FA is active.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorSetupRequired indicates confirmation was attempted without a pending setup.
	ErrTwoFactorSetupRequired = errors.New("two-factor setup has not been started")
	// ErrTwoFactorCodeInvalid indicates the submitted code verified against neither
	// the shared secret nor an unused backup code.
	ErrTwoFactorCodeInvalid = errors.New("two-factor code invalid")
	// ErrBackupCodeExhausted indicates the submitted backup code was already consumed.
	ErrBackupCodeExhausted = errors.New("backup code already used")
)

// TwoFactorEnrollment is returned by BeginSetup for QR delivery by the client.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// TwoFactorVerification reports how a login code verified.
type TwoFactorVerification struct {
	UsedBackupCode   bool
	RemainingBackups int
}

// TwoFactorService manages TOTP enrollment, verification, and backup codes.
type TwoFactorService struct {
	identities port.IdentityRepository
	events     port.EventPublisher
	issuer     string
	now        func() time.Time
}

// NewTwoFactorService constructs a two-factor service. The issuer names this
// service inside authenticator apps.
func NewTwoFactorService(identities port.IdentityRepository, events port.EventPublisher, issuer string) *TwoFactorService {
	return &TwoFactorService{
		identities: identities,
		events:     events,
		issuer:     issuer,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TwoFactorService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// BeginSetup generates a fresh secret and backup codes and persists them in an
// unconfirmed state. Calling it again before confirmation replaces the pending
// secret.
func (s *TwoFactorService) BeginSetup(ctx context.Context, identity domain.Identity) (*TwoFactorEnrollment, error) {
	existing, err := s.identities.GetTwoFactor(ctx, identity.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load two-factor config: %w", err)
	}
	if existing != nil && existing.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	enrollment, err := security.GenerateTOTPSecret(s.issuer, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	codes, err := security.GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	cfg := domain.TwoFactorConfig{
		Enabled:     false,
		Secret:      enrollment.Secret,
		BackupCodes: make([]domain.BackupCode, 0, len(codes)),
	}
	for _, code := range codes {
		cfg.BackupCodes = append(cfg.BackupCodes, domain.BackupCode{Code: code})
	}

	if err := s.identities.SaveTwoFactor(ctx, identity.ID, cfg); err != nil {
		return nil, fmt.Errorf("store two-factor config: %w", err)
	}

	return &TwoFactorEnrollment{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     codes,
	}, nil
}

// ConfirmSetup verifies the submitted code against the pending secret and, on
// success, flips the config to enabled.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, identityID, code string) error {
	cfg, err := s.identities.GetTwoFactor(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTwoFactorSetupRequired
		}
		return fmt.Errorf("load two-factor config: %w", err)
	}
	if cfg.Enabled {
		return ErrTwoFactorAlreadyEnabled
	}

	ok, err := security.ValidateTOTP(code, cfg.Secret, s.now().UTC())
	if err != nil {
		return fmt.Errorf("validate totp: %w", err)
	}
	if !ok {
		return ErrTwoFactorCodeInvalid
	}

	cfg.Enabled = true
	if err := s.identities.SaveTwoFactor(ctx, identityID, *cfg); err != nil {
		return fmt.Errorf("store two-factor config: %w", err)
	}

	s.publishStateChanged(ctx, identityID, true)
	return nil
}

// VerifyLogin checks a login code: unused backup codes first (consuming the
// first exact match), then the time-stepped code against the enabled secret.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, identityID, code string) (*TwoFactorVerification, error) {
	cfg, err := s.identities.GetTwoFactor(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTwoFactorNotEnabled
		}
		return nil, fmt.Errorf("load two-factor config: %w", err)
	}
	if !cfg.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}

	if cfg.ConsumeBackupCode(code) {
		if err := s.identities.SaveTwoFactor(ctx, identityID, *cfg); err != nil {
			return nil, fmt.Errorf("store two-factor config: %w", err)
		}
		return &TwoFactorVerification{
			UsedBackupCode:   true,
			RemainingBackups: cfg.RemainingBackupCodes(),
		}, nil
	}

	ok, err := security.ValidateTOTP(code, cfg.Secret, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("validate totp: %w", err)
	}
	if !ok {
		for _, backup := range cfg.BackupCodes {
			if backup.Used && backup.Code == code {
				return nil, ErrBackupCodeExhausted
			}
		}
		return nil, ErrTwoFactorCodeInvalid
	}

	return &TwoFactorVerification{RemainingBackups: cfg.RemainingBackupCodes()}, nil
}

// Disable requires password re-verification before clearing the secret and
// backup codes.
func (s *TwoFactorService) Disable(ctx context.Context, identity domain.Identity, password string) error {
	ok, err := security.VerifyPassword(password, identity.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.identities.DeleteTwoFactor(ctx, identity.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTwoFactorNotEnabled
		}
		return fmt.Errorf("delete two-factor config: %w", err)
	}

	s.publishStateChanged(ctx, identity.ID, false)
	return nil
}

// RegenerateBackupCodes replaces the backup code set with ten fresh single-use
// codes. Password-gated; exhausted codes are never replenished implicitly.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, identity domain.Identity, password string) ([]string, error) {
	ok, err := security.VerifyPassword(password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	cfg, err := s.identities.GetTwoFactor(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTwoFactorNotEnabled
		}
		return nil, fmt.Errorf("load two-factor config: %w", err)
	}
	if !cfg.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}

	codes, err := security.GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	cfg.BackupCodes = make([]domain.BackupCode, 0, len(codes))
	for _, code := range codes {
		cfg.BackupCodes = append(cfg.BackupCodes, domain.BackupCode{Code: code})
	}

	if err := s.identities.SaveTwoFactor(ctx, identity.ID, *cfg); err != nil {
		return nil, fmt.Errorf("store two-factor config: %w", err)
	}

	return codes, nil
}

// Status reports whether 2FA is enabled and how many backup codes remain.
func (s *TwoFactorService) Status(ctx context.Context, identityID string) (enabled bool, remainingBackups int, err error) {
	cfg, err := s.identities.GetTwoFactor(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("load two-factor config: %w", err)
	}
	return cfg.Enabled, cfg.RemainingBackupCodes(), nil
}

func (s *TwoFactorService) publishStateChanged(ctx context.Context, identityID string, enabled bool) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishTwoFactorStateChanged(ctx, domain.TwoFactorStateChangedEvent{
		EventID:    uuid.NewString(),
		IdentityID: identityID,
		Enabled:    enabled,
		At:         s.now().UTC(),
	})
}
