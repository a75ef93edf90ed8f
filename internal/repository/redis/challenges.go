package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
)

const defaultChallengePrefix = "challenge"

type challengeRecord struct {
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeStore persists single-use ceremony challenges in Redis. Consume is
// atomic via GETDEL, so concurrent consumers race for at most one winner.
type ChallengeStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewChallengeStore constructs a challenge store with the provided Redis client and key prefix.
func NewChallengeStore(client *red.Client, keyPrefix string) *ChallengeStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}

	return &ChallengeStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *ChallengeStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Put stores the challenge under its kind/subject key with the supplied TTL.
// A second Put for the same key replaces the previous challenge.
func (s *ChallengeStore) Put(ctx context.Context, challenge domain.Challenge, ttl time.Duration) error {
	if challenge.Subject == "" {
		return errors.New("challenge subject is required")
	}
	if len(challenge.Value) == 0 {
		return errors.New("challenge value is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	record := challengeRecord{
		Kind:      string(challenge.Kind),
		Subject:   challenge.Subject,
		Value:     challenge.Value,
		CreatedAt: challenge.CreatedAt,
		ExpiresAt: challenge.ExpiresAt,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	key := s.key(challenge.Kind, challenge.Subject)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge: %w", err)
	}

	return nil
}

// Consume atomically removes the challenge and returns it. A second consume
// for the same key, or a consume after expiry, fails with repository.ErrNotFound.
func (s *ChallengeStore) Consume(ctx context.Context, kind domain.ChallengeKind, subject string) (*domain.Challenge, error) {
	key := s.key(kind, subject)

	data, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel challenge: %w", err)
	}

	var record challengeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKind(record.Kind),
		Subject:   record.Subject,
		Value:     record.Value,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}

	if challenge.IsExpired(s.now().UTC()) {
		return nil, repository.ErrNotFound
	}

	return &challenge, nil
}

func (s *ChallengeStore) key(kind domain.ChallengeKind, subject string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, subject)
}

var _ port.ChallengeStore = (*ChallengeStore)(nil)
