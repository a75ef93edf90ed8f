package redis

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestChallengeStore_PutAndConsume(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewChallengeStore(client, "challenge")

	ctx := context.Background()
	now := time.Now().UTC()
	value := []byte{0x01, 0x02, 0x03, 0x04}

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKindPasskeyRegistration,
		Subject:   "identity-1",
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}

	if err := store.Put(ctx, challenge, 5*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	remaining := server.TTL("challenge:passkey_registration:identity-1")
	if remaining <= 0 || remaining > 5*time.Minute {
		t.Fatalf("expected ttl within (0, 5m], got %v", remaining)
	}

	got, err := store.Consume(ctx, domain.ChallengeKindPasskeyRegistration, "identity-1")
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if !bytes.Equal(got.Value, value) {
		t.Fatalf("expected challenge value %x, got %x", value, got.Value)
	}
}

func TestChallengeStore_ConsumeIsSingleUse(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewChallengeStore(client, "challenge")

	ctx := context.Background()
	now := time.Now().UTC()

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKindPasskeyAuthentication,
		Subject:   "identity-1",
		Value:     []byte{0xaa},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}

	if err := store.Put(ctx, challenge, time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if _, err := store.Consume(ctx, challenge.Kind, challenge.Subject); err != nil {
		t.Fatalf("first Consume returned error: %v", err)
	}

	if _, err := store.Consume(ctx, challenge.Kind, challenge.Subject); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}
}

func TestChallengeStore_ConsumeExpired(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewChallengeStore(client, "challenge")

	ctx := context.Background()
	now := time.Now().UTC()

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKindTOTPSetup,
		Subject:   "identity-1",
		Value:     []byte{0xbb},
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
}

func TestChallengeStore_KindsAreIsolated(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewChallengeStore(client, "challenge")

	ctx := context.Background()
	now := time.Now().UTC()

	reg := domain.Challenge{
		Kind:      domain.ChallengeKindPasskeyRegistration,
		Subject:   "identity-1",
		Value:     []byte{0x01},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
	auth := domain.Challenge{
		Kind:      domain.ChallengeKindPasskeyAuthentication,
		Subject:   "identity-1",
		Value:     []byte{0x02},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}

	if err := store.Put(ctx, reg, time.Minute); err != nil {
		t.Fatalf("Put registration returned error: %v", err)
	}
	if err := store.Put(ctx, auth, time.Minute); err != nil {
		t.Fatalf("Put authentication returned error: %v", err)
	}

	got, err := store.Consume(ctx, domain.ChallengeKindPasskeyRegistration, "identity-1")
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if got.Value[0] != 0x01 {
		t.Fatalf("consumed the wrong kind: %x", got.Value)
	}

	if _, err := store.Consume(ctx, domain.ChallengeKindPasskeyAuthentication, "identity-1"); err != nil {
		t.Fatalf("authentication challenge should survive: %v", err)
	}
}

func TestChallengeStore_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewChallengeStore(client, "challenge")

	ctx := context.Background()
	now := time.Now().UTC()

	challenge := domain.Challenge{
		Kind:      domain.ChallengeKindTOTPSetup,
		Subject:   "identity-1",
		Value:     []byte{0x01},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}

	if err := store.Put(ctx, domain.Challenge{Kind: challenge.Kind, Value: challenge.Value}, time.Minute); err == nil {
		t.Fatalf("expected error for empty subject")
	}
	if err := store.Put(ctx, domain.Challenge{Kind: challenge.Kind, Subject: "identity-1"}, time.Minute); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if err := store.Put(ctx, challenge, 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}
