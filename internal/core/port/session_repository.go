package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// SessionRepository deals with per-device session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	ListByIdentity(ctx context.Context, identityID string) ([]domain.Session, error)
	Touch(ctx context.Context, identityID, sessionID string, at time.Time) error
	Delete(ctx context.Context, identityID, sessionID string) error
	DeleteAllExcept(ctx context.Context, identityID, keepSessionID string) (int, error)
	DeleteAll(ctx context.Context, identityID string) (int, error)
	DeleteStale(ctx context.Context, identityID string, cutoff time.Time) (int, error)
}
