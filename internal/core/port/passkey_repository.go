package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// PasskeyRepository stores registered public-key credentials. Credential ids
// are globally unique; Create must fail on a duplicate credential id.
type PasskeyRepository interface {
	Create(ctx context.Context, passkey domain.Passkey) error
	GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Passkey, error)
	ListByIdentity(ctx context.Context, identityID string) ([]domain.Passkey, error)
	UpdateAssertion(ctx context.Context, credentialID []byte, signCount uint32, lastUsedAt time.Time) error
	Delete(ctx context.Context, identityID string, credentialID []byte) error
}
