package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// IdentityRepository exposes persistence behaviour for identities and the
// trust attributes they own (two-factor config, login history, trusted
// devices). Lookup misses surface repository.ErrNotFound.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	SetBanned(ctx context.Context, id string, reason string) error
	ClearSuspension(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error

	GetTwoFactor(ctx context.Context, identityID string) (*domain.TwoFactorConfig, error)
	SaveTwoFactor(ctx context.Context, identityID string, cfg domain.TwoFactorConfig) error
	DeleteTwoFactor(ctx context.Context, identityID string) error

	AppendLoginHistory(ctx context.Context, identityID string, entry domain.LoginHistoryEntry, limit int) error
	ListLoginHistory(ctx context.Context, identityID string) ([]domain.LoginHistoryEntry, error)

	AddTrustedDevice(ctx context.Context, identityID string, device domain.TrustedDevice) error
	ListTrustedDevices(ctx context.Context, identityID string) ([]domain.TrustedDevice, error)
}
