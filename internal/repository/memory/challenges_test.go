package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

func TestChallengeStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewChallengeStore()
	ctx := context.Background()
	now := time.Now().UTC()

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKindPasskeyRegistration,
		Subject:   "identity-1",
		Value:     []byte{0x01, 0x02},
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}

	if err := store.Put(ctx, challenge, 5*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	got, err := store.Consume(ctx, challenge.Kind, challenge.Subject)
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if got.Subject != "identity-1" {
		t.Fatalf("unexpected subject %s", got.Subject)
	}

	if _, err := store.Consume(ctx, challenge.Kind, challenge.Subject); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}
}

func TestChallengeStore_ConsumeExpired(t *testing.T) {
	store := NewChallengeStore()
	ctx := context.Background()
	now := time.Now().UTC()

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKindTOTPSetup,
		Subject:   "identity-1",
		Value:     []byte{0x01},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}

	if err := store.Put(ctx, challenge, time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	store.WithClock(func() time.Time { return now.Add(2 * time.Minute) })

	if _, err := store.Consume(ctx, challenge.Kind, challenge.Subject); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired challenge, got %v", err)
	}

	// The expired entry is removed even though consumption failed.
	store.WithClock(func() time.Time { return now })
	if _, err := store.Consume(ctx, challenge.Kind, challenge.Subject); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected expired entry to be dropped, got %v", err)
	}
}

func TestChallengeStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewChallengeStore()
	ctx := context.Background()
	now := time.Now().UTC()

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKindPasskeyAuthentication,
		Subject:   "identity-1",
		Value:     []byte{0x01},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}

	if err := store.Put(ctx, challenge, time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	const workers = 16

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, challenge.Kind, challenge.Subject); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestChallengeStore_PutReplaces(t *testing.T) {
	store := NewChallengeStore()
	ctx := context.Background()
	now := time.Now().UTC()

	first := domain.Challenge{
		Kind:      domain.ChallengeKindPasskeyRegistration,
		Subject:   "identity-1",
		Value:     []byte{0x01},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
	second := first
	second.Value = []byte{0x02}

	if err := store.Put(ctx, first, time.Minute); err != nil {
		t.Fatalf("Put first returned error: %v", err)
	}
	if err := store.Put(ctx, second, time.Minute); err != nil {
		t.Fatalf("Put second returned error: %v", err)
	}

	got, err := store.Consume(ctx, first.Kind, first.Subject)
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if got.Value[0] != 0x02 {
		t.Fatalf("expected replacement challenge, got %x", got.Value)
	}
}
