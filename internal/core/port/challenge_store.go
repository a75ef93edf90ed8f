package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// ChallengeStore holds short-lived single-use challenges keyed by kind and
// subject. Consume atomically removes the entry: a second Consume for the same
// key fails with repository.ErrNotFound, as does consuming an expired entry.
type ChallengeStore interface {
	Put(ctx context.Context, challenge domain.Challenge, ttl time.Duration) error
	Consume(ctx context.Context, kind domain.ChallengeKind, subject string) (*domain.Challenge, error)
}

// AntiForgeryStore holds double-submit tokens. Get does not remove the entry;
// tokens stay reusable until the validity horizon passes. Sweep evicts expired
// entries and returns how many were removed.
type AntiForgeryStore interface {
	Put(ctx context.Context, token domain.AntiForgeryToken) error
	Get(ctx context.Context, value string) (*domain.AntiForgeryToken, error)
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
