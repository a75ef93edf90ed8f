package port

import (
	"context"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// EventPublisher publishes security events to the message bus. Publishing is
// advisory: failures are logged by implementations and never propagate into
// authentication outcomes.
type EventPublisher interface {
	PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error
	PublishIdentityBanned(ctx context.Context, event domain.IdentityBannedEvent) error
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishTwoFactorStateChanged(ctx context.Context, event domain.TwoFactorStateChangedEvent) error
	PublishPasskeyLifecycle(ctx context.Context, event domain.PasskeyLifecycleEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
}
