package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/infra/config"
)

const schemaVersion = "1.0"

// Event topics published by the service.
const (
	TopicUserRegistered  = "user.registered"
	TopicUserBanned      = "user.banned"
	TopicLoginSucceeded  = "login.succeeded"
	TopicLoginFailed     = "login.failed"
	TopicLoginSuspicious = "login.suspicious"
	TopicTwoFactorOn     = "2fa.enabled"
	TopicTwoFactorOff    = "2fa.disabled"
	TopicPasskeyAdded    = "passkey.registered"
	TopicPasskeyRemoved  = "passkey.removed"
	TopicSessionRevoked  = "session.revoked"
)

// EventPublisher publishes domain events to Kafka using a uniform envelope.
type EventPublisher struct {
	producer *Producer
	app      config.AppSettings
	logger   *zap.Logger
}

// NewEventPublisher creates a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, app config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		app:      app,
		logger:   logger,
	}
}

type eventEnvelope struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Payload   any            `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, topic string, envelope eventEnvelope) error {
	envelope.Version = schemaVersion

	if envelope.Metadata == nil {
		envelope.Metadata = map[string]any{}
	}
	envelope.Metadata["service"] = p.app.Name
	envelope.Metadata["environment"] = p.app.Env

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		envelope.Metadata["trace_id"] = span.SpanContext().TraceID().String()
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(topic),
		Key:   sarama.StringEncoder(envelope.UserID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case p.producer.Producer().Input() <- msg:
		p.logger.Debug("Event queued",
			zap.String("topic", msg.Topic),
			zap.String("event_id", envelope.EventID),
			zap.String("event_type", envelope.EventType),
		)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue event %s: %w", envelope.EventType, ctx.Err())
	}
}

// PublishIdentityRegistered emits auth.user.registered.
func (p *EventPublisher) PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error {
	return p.publish(ctx, TopicUserRegistered, eventEnvelope{
		EventID:   event.EventID,
		EventType: TopicUserRegistered,
		UserID:    event.IdentityID,
		Timestamp: event.RegisteredAt,
		Payload: struct {
			Username string `json:"username"`
			Email    string `json:"email"`
		}{
			Username: event.Username,
			Email:    event.Email,
		},
		Metadata: event.Metadata,
	})
}

// PublishIdentityBanned emits auth.user.banned.
func (p *EventPublisher) PublishIdentityBanned(ctx context.Context, event domain.IdentityBannedEvent) error {
	return p.publish(ctx, TopicUserBanned, eventEnvelope{
		EventID:   event.EventID,
		EventType: TopicUserBanned,
		UserID:    event.IdentityID,
		Timestamp: event.BannedAt,
		Payload: struct {
			Reason string `json:"reason"`
			Age    *int   `json:"age,omitempty"`
		}{
			Reason: event.Reason,
			Age:    event.Age,
		},
		Metadata: event.Metadata,
	})
}

// PublishLoginSucceeded emits auth.login.succeeded and, when the heuristic
// flagged the attempt, auth.login.suspicious with the same payload.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		SessionID   string `json:"session_id"`
		Method      string `json:"method"`
		IP          string `json:"ip,omitempty"`
		Fingerprint string `json:"fingerprint,omitempty"`
		Suspicious  bool   `json:"suspicious"`
	}{
		SessionID:   event.SessionID,
		Method:      event.Method,
		IP:          event.IP,
		Fingerprint: event.Fingerprint,
		Suspicious:  event.Suspicious,
	}

	if err := p.publish(ctx, TopicLoginSucceeded, eventEnvelope{
		EventID:   event.EventID,
		EventType: TopicLoginSucceeded,
		UserID:    event.IdentityID,
		Timestamp: event.At,
		Payload:   payload,
		Metadata:  event.Metadata,
	}); err != nil {
		return err
	}

	if !event.Suspicious {
		return nil
	}

	return p.publish(ctx, TopicLoginSuspicious, eventEnvelope{
		EventID:   event.EventID,
		EventType: TopicLoginSuspicious,
		UserID:    event.IdentityID,
		Timestamp: event.At,
		Payload:   payload,
		Metadata:  event.Metadata,
	})
}

// PublishLoginFailed emits auth.login.failed.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	return p.publish(ctx, TopicLoginFailed, eventEnvelope{
		EventID:   event.EventID,
		EventType: TopicLoginFailed,
		UserID:    event.IdentityID,
		Timestamp: event.At,
		Payload: struct {
			Reason string `json:"reason"`
			IP     string `json:"ip,omitempty"`
		}{
			Reason: event.Reason,
			IP:     event.IP,
		},
		Metadata: event.Metadata,
	})
}

// PublishTwoFactorStateChanged emits auth.2fa.enabled or auth.2fa.disabled.
func (p *EventPublisher) PublishTwoFactorStateChanged(ctx context.Context, event domain.TwoFactorStateChangedEvent) error {
	topic := TopicTwoFactorOff
	if event.Enabled {
		topic = TopicTwoFactorOn
	}

	return p.publish(ctx, topic, eventEnvelope{
		EventID:   event.EventID,
		EventType: topic,
		UserID:    event.IdentityID,
		Timestamp: event.At,
		Payload: struct {
			Enabled bool `json:"enabled"`
		}{
			Enabled: event.Enabled,
		},
		Metadata: event.Metadata,
	})
}

// PublishPasskeyLifecycle emits auth.passkey.registered or auth.passkey.removed.
func (p *EventPublisher) PublishPasskeyLifecycle(ctx context.Context, event domain.PasskeyLifecycleEvent) error {
	topic := TopicPasskeyRemoved
	if event.Registered {
		topic = TopicPasskeyAdded
	}

	return p.publish(ctx, topic, eventEnvelope{
		EventID:   event.EventID,
		EventType: topic,
		UserID:    event.IdentityID,
		Timestamp: event.At,
		Payload: struct {
			CredentialID string `json:"credential_id"`
			Label        string `json:"label,omitempty"`
		}{
			CredentialID: event.CredentialID,
			Label:        event.Label,
		},
		Metadata: event.Metadata,
	})
}

// PublishSessionRevoked emits auth.session.revoked.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	return p.publish(ctx, TopicSessionRevoked, eventEnvelope{
		EventID:   event.EventID,
		EventType: TopicSessionRevoked,
		UserID:    event.IdentityID,
		Timestamp: event.RevokedAt,
		Payload: struct {
			SessionID string `json:"session_id"`
			Reason    string `json:"reason,omitempty"`
		}{
			SessionID: event.SessionID,
			Reason:    event.Reason,
		},
		Metadata: event.Metadata,
	})
}
