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

const defaultAntiForgeryPrefix = "antiforgery"

type antiForgeryRecord struct {
	Value      string    `json:"value"`
	IdentityID *string   `json:"identity_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AntiForgeryStore persists double-submit tokens in Redis. Tokens are not
// consumed by verification; Redis TTL bounds their lifetime and Sweep clears
// stragglers past the validity horizon.
type AntiForgeryStore struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewAntiForgeryStore constructs a token store with the provided Redis client,
// key prefix, and entry TTL.
func NewAntiForgeryStore(client *red.Client, keyPrefix string, ttl time.Duration) *AntiForgeryStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultAntiForgeryPrefix
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &AntiForgeryStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Put stores the token under its opaque value.
func (s *AntiForgeryStore) Put(ctx context.Context, token domain.AntiForgeryToken) error {
	if token.Value == "" {
		return errors.New("token value is required")
	}

	data, err := json.Marshal(antiForgeryRecord{
		Value:      token.Value,
		IdentityID: token.IdentityID,
		CreatedAt:  token.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal antiforgery token: %w", err)
	}

	if err := s.client.Set(ctx, s.key(token.Value), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set antiforgery token: %w", err)
	}

	return nil
}

// Get returns the stored token without removing it.
func (s *AntiForgeryStore) Get(ctx context.Context, value string) (*domain.AntiForgeryToken, error) {
	data, err := s.client.Get(ctx, s.key(value)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get antiforgery token: %w", err)
	}

	var record antiForgeryRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal antiforgery token: %w", err)
	}

	return &domain.AntiForgeryToken{
		Value:      record.Value,
		IdentityID: record.IdentityID,
		CreatedAt:  record.CreatedAt,
	}, nil
}

// Sweep removes tokens created before the cutoff. Redis TTL already evicts
// most entries; the scan catches tokens stored with a longer TTL than the
// current validity horizon.
func (s *AntiForgeryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	pattern := fmt.Sprintf("%s:*", s.prefix)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan antiforgery tokens: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, red.Nil) {
					continue
				}
				return removed, fmt.Errorf("redis get antiforgery token: %w", err)
			}

			var record antiForgeryRecord
			if err := json.Unmarshal(data, &record); err != nil {
				continue
			}

			if record.CreatedAt.Before(cutoff) {
				deleted, err := s.client.Del(ctx, key).Result()
				if err != nil {
					return removed, fmt.Errorf("redis delete antiforgery token: %w", err)
				}
				removed += int(deleted)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (s *AntiForgeryStore) key(value string) string {
	return fmt.Sprintf("%s:%s", s.prefix, value)
}

var _ port.AntiForgeryStore = (*AntiForgeryStore)(nil)
