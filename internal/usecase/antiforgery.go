package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	zap "go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository"
)

const (
	defaultAntiForgeryTTL   = time.Hour
	defaultSweepInterval    = 10 * time.Minute
	antiForgeryTokenEntropy = 32
)

// ErrAntiForgeryMismatch indicates the header token and cookie token do not
// match, are missing, or are unknown to the store.
var ErrAntiForgeryMismatch = errors.New("anti-forgery token mismatch")

// AntiForgeryService issues and verifies double-submit tokens. A token is
// handed out in both a cookie and a response field; mutating requests must
// echo it back in a header that matches the cookie. Verification does not
// consume the token.
type AntiForgeryService struct {
	store  port.AntiForgeryStore
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewAntiForgeryService constructs an AntiForgeryService. A non-positive ttl
// falls back to one hour.
func NewAntiForgeryService(store port.AntiForgeryStore, logger *zap.Logger, ttl time.Duration) *AntiForgeryService {
	if ttl <= 0 {
		ttl = defaultAntiForgeryTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AntiForgeryService{
		store:  store,
		logger: logger,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AntiForgeryService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// TTL reports the configured validity horizon.
func (s *AntiForgeryService) TTL() time.Duration {
	return s.ttl
}

// Issue mints a fresh token, optionally bound to an identity, and stores it.
func (s *AntiForgeryService) Issue(ctx context.Context, identityID *string) (*domain.AntiForgeryToken, error) {
	value, err := security.GenerateSecureToken(antiForgeryTokenEntropy)
	if err != nil {
		return nil, fmt.Errorf("generate anti-forgery token: %w", err)
	}

	token := domain.AntiForgeryToken{
		Value:      value,
		IdentityID: identityID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Put(ctx, token); err != nil {
		return nil, fmt.Errorf("store anti-forgery token: %w", err)
	}
	return &token, nil
}

// Verify checks the double-submit pair: both values must be present, equal
// under constant-time comparison, known to the store, and within the validity
// horizon.
func (s *AntiForgeryService) Verify(ctx context.Context, headerValue, cookieValue string) error {
	if headerValue == "" || cookieValue == "" {
		return ErrAntiForgeryMismatch
	}
	if !security.TokensEqual(headerValue, cookieValue) {
		return ErrAntiForgeryMismatch
	}

	token, err := s.store.Get(ctx, headerValue)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAntiForgeryMismatch
		}
		return fmt.Errorf("load anti-forgery token: %w", err)
	}
	if token.IsExpired(s.now().UTC(), s.ttl) {
		return ErrAntiForgeryMismatch
	}
	return nil
}

// Sweep evicts tokens older than the validity horizon.
func (s *AntiForgeryService) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.ttl)
	return s.store.Sweep(ctx, cutoff)
}

// RunSweeper periodically sweeps expired tokens until the context is
// cancelled. Intended to run in its own goroutine.
func (s *AntiForgeryService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn("Anti-forgery sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Debug("Anti-forgery sweep completed", zap.Int("removed", removed))
			}
		}
	}
}
