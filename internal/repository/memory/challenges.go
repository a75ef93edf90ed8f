package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// ChallengeStore keeps ceremony challenges in process memory. Used when Redis
// is disabled; suitable only for single-instance deployments.
type ChallengeStore struct {
	mu      sync.Mutex
	entries map[string]domain.Challenge
	now     func() time.Time
}

// NewChallengeStore constructs an in-memory challenge store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		entries: make(map[string]domain.Challenge),
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *ChallengeStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Put stores the challenge under its kind/subject key, replacing any previous
// challenge for the same key.
func (s *ChallengeStore) Put(_ context.Context, challenge domain.Challenge, ttl time.Duration) error {
	if challenge.Subject == "" {
		return errors.New("challenge subject is required")
	}
	if len(challenge.Value) == 0 {
		return errors.New("challenge value is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[challengeKey(challenge.Kind, challenge.Subject)] = challenge
	return nil
}

// Consume removes the challenge and returns it. The removal happens under the
// store lock, so concurrent consumers race for at most one winner.
func (s *ChallengeStore) Consume(_ context.Context, kind domain.ChallengeKind, subject string) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(kind, subject)
	challenge, ok := s.entries[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.entries, key)

	if challenge.IsExpired(s.now().UTC()) {
		return nil, repository.ErrNotFound
	}

	return &challenge, nil
}

func challengeKey(kind domain.ChallengeKind, subject string) string {
	return fmt.Sprintf("%s:%s", kind, subject)
}

var _ port.ChallengeStore = (*ChallengeStore)(nil)
