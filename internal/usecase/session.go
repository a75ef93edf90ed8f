package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
)

const (
	defaultStalenessHorizon = 30 * 24 * time.Hour

	// RevokeReasonLogout marks a session removed by its own device.
	RevokeReasonLogout = "logout"
	// RevokeReasonLogoutOthers marks sessions removed by a logout-others sweep.
	RevokeReasonLogoutOthers = "logout_others"
	// RevokeReasonLogoutAll marks sessions removed by a logout-all sweep.
	RevokeReasonLogoutAll = "logout_all"
)

// ErrSessionNotFound indicates the referenced session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionService owns the per-device session registry.
type SessionService struct {
	sessions port.SessionRepository
	events   port.EventPublisher
	horizon  time.Duration
	now      func() time.Time
}

// NewSessionService constructs a session service. A non-positive horizon falls
// back to the 30 day default.
func NewSessionService(sessions port.SessionRepository, events port.EventPublisher, horizon time.Duration) *SessionService {
	if horizon <= 0 {
		horizon = defaultStalenessHorizon
	}
	return &SessionService{
		sessions: sessions,
		events:   events,
		horizon:  horizon,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Create prunes sessions past the staleness horizon, then appends a fresh
// session record with a random id.
func (s *SessionService) Create(ctx context.Context, identityID, fingerprint, ip string, userAgent *string) (*domain.Session, error) {
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	now := s.now().UTC()

	if _, err := s.sessions.DeleteStale(ctx, identityID, now.Add(-s.horizon)); err != nil {
		return nil, fmt.Errorf("prune stale sessions: %w", err)
	}

	session := domain.Session{
		IdentityID:  identityID,
		Fingerprint: fingerprint,
		IP:          ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
		LastActive:  now,
	}

	// Random ids collide only under a broken entropy source; the primary key
	// still backs the uniqueness invariant, so retry a couple of times.
	for attempt := 0; attempt < 3; attempt++ {
		session.ID = uuid.NewString()
		err := s.sessions.Create(ctx, session)
		if err == nil {
			return &session, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	return nil, fmt.Errorf("create session: could not allocate a unique id")
}

// Get retrieves a session by id.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	return session, nil
}

// List returns the identity's sessions sorted by last-active descending.
func (s *SessionService) List(ctx context.Context, identityID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Touch refreshes the session's last-active timestamp. Touching a session
// that no longer exists is a no-op.
func (s *SessionService) Touch(ctx context.Context, identityID, sessionID string) error {
	err := s.sessions.Touch(ctx, identityID, sessionID, s.now().UTC())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Revoke removes a single session. Revoking a missing session is not an
// error, keeping the operation idempotent under retry.
func (s *SessionService) Revoke(ctx context.Context, identityID, sessionID, reason string) error {
	err := s.sessions.Delete(ctx, identityID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("revoke session: %w", err)
	}

	s.publishRevoked(ctx, identityID, sessionID, reason)
	return nil
}

// RevokeAllExcept removes every session except the one to keep and returns
// how many were removed.
func (s *SessionService) RevokeAllExcept(ctx context.Context, identityID, keepSessionID string) (int, error) {
	removed, err := s.sessions.DeleteAllExcept(ctx, identityID, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("revoke other sessions: %w", err)
	}

	if removed > 0 {
		s.publishRevoked(ctx, identityID, "", RevokeReasonLogoutOthers)
	}
	return removed, nil
}

// RevokeAll removes every session owned by the identity.
func (s *SessionService) RevokeAll(ctx context.Context, identityID string) (int, error) {
	removed, err := s.sessions.DeleteAll(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}

	if removed > 0 {
		s.publishRevoked(ctx, identityID, "", RevokeReasonLogoutAll)
	}
	return removed, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, identityID, sessionID, reason string) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishSessionRevoked(ctx, domain.SessionRevokedEvent{
		EventID:    uuid.NewString(),
		IdentityID: identityID,
		SessionID:  sessionID,
		Reason:     reason,
		RevokedAt:  s.now().UTC(),
	})
}
