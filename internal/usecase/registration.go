package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository"
)

var (
	// ErrIdentityExists indicates the email or username is already taken.
	ErrIdentityExists = errors.New("identity already exists")
	// ErrInvalidEmail indicates the email failed syntactic validation.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidUsername indicates the username failed validation.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidBirthDate indicates the birth date is missing or in the future.
	ErrInvalidBirthDate = errors.New("invalid birth date")
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
)

// RegistrationInput carries the fields of a sign-up request.
type RegistrationInput struct {
	Email     string
	Username  string
	Password  string
	BirthDate time.Time
}

// RegistrationService creates identities. The age gate runs at sign-up:
// an applicant under the threshold still gets an identity, created in the
// banned state, so repeated sign-up attempts cannot dodge the gate.
type RegistrationService struct {
	identities port.IdentityRepository
	events     port.EventPublisher
	now        func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(identities port.IdentityRepository, events port.EventPublisher) *RegistrationService {
	return &RegistrationService{
		identities: identities,
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register validates the input, hashes the password, and persists the new
// identity. Underage applicants are persisted banned and the call fails with
// UnderageError.
func (s *RegistrationService) Register(ctx context.Context, input RegistrationInput) (*domain.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)
	now := s.now().UTC()

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if input.BirthDate.IsZero() || input.BirthDate.After(now) {
		return nil, ErrInvalidBirthDate
	}

	validator := security.DefaultPasswordValidator(email, username)
	if err := validator.Validate(input.Password); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := domain.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		BirthDate:    input.BirthDate.UTC(),
		Role:         domain.RoleUser,
		RegisteredAt: now,
	}

	age := identity.AgeAt(now)
	underage := age < minimumAge
	if underage {
		identity.Ban(domain.BanReasonUnderage)
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrIdentityExists
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	if s.events != nil {
		_ = s.events.PublishIdentityRegistered(ctx, domain.IdentityRegisteredEvent{
			EventID:      uuid.NewString(),
			IdentityID:   identity.ID,
			Username:     identity.Username,
			Email:        identity.Email,
			RegisteredAt: identity.RegisteredAt,
		})
		if underage {
			_ = s.events.PublishIdentityBanned(ctx, domain.IdentityBannedEvent{
				EventID:    uuid.NewString(),
				IdentityID: identity.ID,
				Reason:     domain.BanReasonUnderage,
				Age:        &age,
				BannedAt:   now,
			})
		}
	}

	if underage {
		return &identity, &UnderageError{Age: age}
	}
	return &identity, nil
}

func validateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return ErrInvalidUsername
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return ErrInvalidUsername
		}
	}
	return nil
}
