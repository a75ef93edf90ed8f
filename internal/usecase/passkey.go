package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository"
)

const defaultChallengeTTL = 5 * time.Minute

var (
	// ErrChallengeExpiredOrMissing indicates the ceremony challenge was never
	// issued, already consumed, or past its TTL.
	ErrChallengeExpiredOrMissing = errors.New("challenge expired or missing")
	// ErrReplayDetected indicates a non-increasing passkey signature counter,
	// the signature of a cloned authenticator.
	ErrReplayDetected = errors.New("replay detected")
	// ErrCeremonyFailed indicates the signed ceremony response did not verify.
	ErrCeremonyFailed = errors.New("ceremony verification failed")
	// ErrPasskeyNotFound indicates no credential matches the supplied id.
	ErrPasskeyNotFound = errors.New("passkey not found")
	// ErrPasskeyExists indicates the credential id is already registered.
	ErrPasskeyExists = errors.New("passkey already registered")
)

// PasskeyRegistrationOptions parameterize the client-side create() call.
type PasskeyRegistrationOptions struct {
	Challenge            []byte
	RelyingPartyID       string
	RelyingPartyName     string
	ExcludeCredentialIDs [][]byte
	ExpiresAt            time.Time
}

// PasskeyAuthenticationOptions parameterize the client-side get() call. FlowID
// keys the challenge and must be echoed back on finish.
type PasskeyAuthenticationOptions struct {
	Challenge          []byte
	RelyingPartyID     string
	AllowCredentialIDs [][]byte
	FlowID             string
	ExpiresAt          time.Time
}

// PasskeyAssertionInput carries the signed response of an authentication ceremony.
type PasskeyAssertionInput struct {
	FlowID            string
	CredentialID      []byte
	AuthenticatorData []byte
	ClientDataJSON    []byte
	Signature         []byte
}

// PasskeyService runs the registration and authentication ceremonies.
type PasskeyService struct {
	identities port.IdentityRepository
	passkeys   port.PasskeyRepository
	challenges port.ChallengeStore
	events     port.EventPublisher
	cfg        config.PasskeySettings
	ttl        time.Duration
	now        func() time.Time
}

// NewPasskeyService constructs a passkey ceremony service.
func NewPasskeyService(
	identities port.IdentityRepository,
	passkeys port.PasskeyRepository,
	challenges port.ChallengeStore,
	events port.EventPublisher,
	cfg config.PasskeySettings,
	challengeTTL time.Duration,
) *PasskeyService {
	if challengeTTL <= 0 {
		challengeTTL = defaultChallengeTTL
	}
	return &PasskeyService{
		identities: identities,
		passkeys:   passkeys,
		challenges: challenges,
		events:     events,
		cfg:        cfg,
		ttl:        challengeTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PasskeyService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// BeginRegistration issues a fresh identity-scoped challenge and returns the
// ceremony parameters, including existing credential ids so the authenticator
// can refuse to re-register a device.
func (s *PasskeyService) BeginRegistration(ctx context.Context, identityID string) (*PasskeyRegistrationOptions, error) {
	existing, err := s.passkeys.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}

	challenge, err := s.issueChallenge(ctx, domain.ChallengeKindPasskeyRegistration, identityID)
	if err != nil {
		return nil, err
	}

	exclude := make([][]byte, 0, len(existing))
	for _, passkey := range existing {
		exclude = append(exclude, passkey.CredentialID)
	}

	return &PasskeyRegistrationOptions{
		Challenge:            challenge.Value,
		RelyingPartyID:       s.cfg.RelyingPartyID,
		RelyingPartyName:     s.cfg.RelyingPartyName,
		ExcludeCredentialIDs: exclude,
		ExpiresAt:            challenge.ExpiresAt,
	}, nil
}

// FinishRegistration consumes the challenge exactly once, verifies the signed
// attestation, and persists the new credential.
func (s *PasskeyService) FinishRegistration(ctx context.Context, identityID string, attestation, clientDataJSON []byte, label string, transports []string) (*domain.Passkey, error) {
	challenge, err := s.consumeChallenge(ctx, domain.ChallengeKindPasskeyRegistration, identityID)
	if err != nil {
		return nil, err
	}

	result, err := security.VerifyRegistration(attestation, clientDataJSON, challenge.Value, s.cfg.RelyingPartyID, s.cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	passkey := domain.Passkey{
		CredentialID: result.CredentialID,
		IdentityID:   identityID,
		PublicKey:    result.PublicKey,
		SignCount:    result.SignCount,
		Label:        strings.TrimSpace(label),
		Transports:   transports,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.passkeys.Create(ctx, passkey); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPasskeyExists
		}
		return nil, fmt.Errorf("store passkey: %w", err)
	}

	s.publishLifecycle(ctx, identityID, passkey.CredentialID, passkey.Label, true)
	return &passkey, nil
}

// BeginAuthentication issues an authentication challenge. With an email it
// constrains the allowed credentials to that identity's passkeys; without one
// it leaves the credential list open for discoverable-credential login. An
// unknown email still yields a challenge with an empty allow list, so the
// response does not reveal whether the account exists.
func (s *PasskeyService) BeginAuthentication(ctx context.Context, email string) (*PasskeyAuthenticationOptions, error) {
	var (
		subject string
		allow   [][]byte
	)

	email = strings.TrimSpace(email)
	if email != "" {
		identity, err := s.identities.GetByEmail(ctx, email)
		switch {
		case err == nil:
			subject = identity.ID
			passkeys, listErr := s.passkeys.ListByIdentity(ctx, identity.ID)
			if listErr != nil {
				return nil, fmt.Errorf("list passkeys: %w", listErr)
			}
			for _, passkey := range passkeys {
				allow = append(allow, passkey.CredentialID)
			}
		case errors.Is(err, repository.ErrNotFound):
			subject = uuid.NewString()
		default:
			return nil, fmt.Errorf("lookup identity: %w", err)
		}
	} else {
		subject = uuid.NewString()
	}

	challenge, err := s.issueChallenge(ctx, domain.ChallengeKindPasskeyAuthentication, subject)
	if err != nil {
		return nil, err
	}

	return &PasskeyAuthenticationOptions{
		Challenge:          challenge.Value,
		RelyingPartyID:     s.cfg.RelyingPartyID,
		AllowCredentialIDs: allow,
		FlowID:             subject,
		ExpiresAt:          challenge.ExpiresAt,
	}, nil
}

// FinishAuthentication resolves the credential, rejects banned or suspended
// identities, consumes the challenge, verifies the signature, and enforces the
// replay-protection invariant before persisting the new counter.
func (s *PasskeyService) FinishAuthentication(ctx context.Context, input PasskeyAssertionInput) (*domain.Identity, *domain.Passkey, error) {
	passkey, err := s.passkeys.GetByCredentialID(ctx, input.CredentialID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrPasskeyNotFound
		}
		return nil, nil, fmt.Errorf("lookup passkey: %w", err)
	}

	identity, err := s.identities.GetByID(ctx, passkey.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrPasskeyNotFound
		}
		return nil, nil, fmt.Errorf("lookup identity: %w", err)
	}

	now := s.now().UTC()
	if identity.Banned {
		return nil, nil, banError(identity)
	}
	if identity.IsSuspended(now) {
		return nil, nil, suspensionError(identity)
	}

	challenge, err := s.consumeChallenge(ctx, domain.ChallengeKindPasskeyAuthentication, input.FlowID)
	if err != nil {
		return nil, nil, err
	}

	result, err := security.VerifyAssertion(
		passkey.PublicKey,
		input.AuthenticatorData,
		input.ClientDataJSON,
		input.Signature,
		challenge.Value,
		s.cfg.RelyingPartyID,
		s.cfg.Origin,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCeremonyFailed, err)
	}

	if passkey.CounterRegressed(result.SignCount) {
		return nil, nil, ErrReplayDetected
	}

	passkey.ApplyAssertion(result.SignCount, now)
	if err := s.passkeys.UpdateAssertion(ctx, passkey.CredentialID, passkey.SignCount, now); err != nil {
		return nil, nil, fmt.Errorf("store assertion: %w", err)
	}

	return identity, passkey, nil
}

// List returns the identity's registered passkeys.
func (s *PasskeyService) List(ctx context.Context, identityID string) ([]domain.Passkey, error) {
	passkeys, err := s.passkeys.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	return passkeys, nil
}

// Remove deletes a credential owned by the identity.
func (s *PasskeyService) Remove(ctx context.Context, identityID string, credentialID []byte) error {
	passkey, err := s.passkeys.GetByCredentialID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPasskeyNotFound
		}
		return fmt.Errorf("lookup passkey: %w", err)
	}
	if passkey.IdentityID != identityID {
		return ErrPasskeyNotFound
	}

	if err := s.passkeys.Delete(ctx, identityID, credentialID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPasskeyNotFound
		}
		return fmt.Errorf("delete passkey: %w", err)
	}

	s.publishLifecycle(ctx, identityID, credentialID, passkey.Label, false)
	return nil
}

func (s *PasskeyService) issueChallenge(ctx context.Context, kind domain.ChallengeKind, subject string) (*domain.Challenge, error) {
	value, err := security.GenerateChallenge(32)
	if err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}

	now := s.now().UTC()
	challenge := domain.Challenge{
		Kind:      kind,
		Subject:   subject,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.challenges.Put(ctx, challenge, s.ttl); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &challenge, nil
}

func (s *PasskeyService) consumeChallenge(ctx context.Context, kind domain.ChallengeKind, subject string) (*domain.Challenge, error) {
	challenge, err := s.challenges.Consume(ctx, kind, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChallengeExpiredOrMissing
		}
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	return challenge, nil
}

func (s *PasskeyService) publishLifecycle(ctx context.Context, identityID string, credentialID []byte, label string, registered bool) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishPasskeyLifecycle(ctx, domain.PasskeyLifecycleEvent{
		EventID:      uuid.NewString(),
		IdentityID:   identityID,
		CredentialID: base64.RawURLEncoding.EncodeToString(credentialID),
		Label:        label,
		Registered:   registered,
		At:           s.now().UTC(),
	})
}
