package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// AntiForgeryStore keeps double-submit tokens in process memory. Tokens are
// not consumed by Get; Sweep evicts entries past the validity horizon.
type AntiForgeryStore struct {
	mu      sync.RWMutex
	entries map[string]domain.AntiForgeryToken
}

// NewAntiForgeryStore constructs an in-memory token store.
func NewAntiForgeryStore() *AntiForgeryStore {
	return &AntiForgeryStore{
		entries: make(map[string]domain.AntiForgeryToken),
	}
}

// Put stores the token under its opaque value.
func (s *AntiForgeryStore) Put(_ context.Context, token domain.AntiForgeryToken) error {
	if token.Value == "" {
		return errors.New("token value is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[token.Value] = token
	return nil
}

// Get returns the stored token without removing it.
func (s *AntiForgeryStore) Get(_ context.Context, value string) (*domain.AntiForgeryToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.entries[value]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return &token, nil
}

// Sweep removes tokens created before the cutoff and returns the count.
func (s *AntiForgeryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for value, token := range s.entries {
		if token.CreatedAt.Before(cutoff) {
			delete(s.entries, value)
			removed++
		}
	}

	return removed, nil
}

var _ port.AntiForgeryStore = (*AntiForgeryStore)(nil)
