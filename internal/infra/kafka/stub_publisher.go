package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// StubPublisher logs events instead of publishing them. Used in development
// and tests when no broker is configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher creates a logging-only event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (s *StubPublisher) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	s.logger.Info("Event skipped (stub publisher)",
		zap.String("event_type", TopicUserRegistered),
		zap.String("user_id", event.IdentityID),
	)
	return nil
}

func (s *StubPublisher) PublishIdentityBanned(_ context.Context, event domain.IdentityBannedEvent) error {
	s.logger.Info("Event skipped (stub publisher)",
		zap.String("event_type", TopicUserBanned),
		zap.String("user_id", event.IdentityID),
		zap.String("reason", event.Reason),
	)
	return nil
}

func (s *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	s.logger.Info("Event skipped (stub publisher)",
		zap.String("event_type", TopicLoginSucceeded),
		zap.String("user_id", event.IdentityID),
		zap.Bool("suspicious", event.Suspicious),
	)
	return nil
}

func (s *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	s.logger.Info("Event skipped (stub publisher)",
		zap.String("event_type", TopicLoginFailed),
		zap.String("user_id", event.IdentityID),
		zap.String("reason", event.Reason),
	)
	return nil
}

func (s *StubPublisher) PublishTwoFactorStateChanged(_ context.Context, event domain.TwoFactorStateChangedEvent) error {
	s.logger.Info("Event skipped (stub publisher)",
		zap.String("event_type", TopicTwoFactorOn),
		zap.String("user_id", event.IdentityID),
		zap.Bool("enabled", event.Enabled),
	)
	return nil
}

func (s *StubPublisher) PublishPasskeyLifecycle(_ context.Context, event domain.PasskeyLifecycleEvent) error {
	s.logger.Info("Event skipped (stub publisher)",
		zap.String("event_type", TopicPasskeyAdded),
		zap.String("user_id", event.IdentityID),
		zap.Bool("registered", event.Registered),
	)
	return nil
}

func (s *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	s.logger.Info("Event skipped (stub publisher)",
		zap.String("event_type", TopicSessionRevoked),
		zap.String("user_id", event.IdentityID),
		zap.String("session_id", event.SessionID),
	)
	return nil
}
