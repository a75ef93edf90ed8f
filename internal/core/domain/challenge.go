package domain

import "time"

// ChallengeKind scopes a challenge to the ceremony that issued it.
type ChallengeKind string

const (
	ChallengeKindPasskeyRegistration   ChallengeKind = "passkey_registration"
	ChallengeKindPasskeyAuthentication ChallengeKind = "passkey_authentication"
	ChallengeKindTOTPSetup             ChallengeKind = "totp_setup"
)

// Challenge is a short-lived, single-use random value keyed by subject. The
// subject is an identity id, or a freshly generated anonymous flow id for
// discoverable-credential logins.
type Challenge struct {
	Kind      ChallengeKind
	Subject   string
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the challenge has elapsed its TTL.
func (c Challenge) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// AntiForgeryToken is a double-submit token compared against its cookie twin.
// Unlike challenges it is not consumed by verification and stays valid until
// its horizon passes.
type AntiForgeryToken struct {
	Value      string
	IdentityID *string
	CreatedAt  time.Time
}

// IsExpired reports whether the token has outlived the validity horizon.
func (t AntiForgeryToken) IsExpired(at time.Time, horizon time.Duration) bool {
	return !t.CreatedAt.Add(horizon).After(at)
}
