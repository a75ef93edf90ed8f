package domain

import "time"

// Passkey is a registered public-key credential owned by an identity.
// CredentialID is globally unique across all identities.
type Passkey struct {
	CredentialID []byte
	IdentityID   string
	PublicKey    []byte
	SignCount    uint32
	Label        string
	Transports   []string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

// ApplyAssertion records a successful authentication ceremony: the verified
// signature counter and the moment of use. The caller is responsible for the
// replay check; this method only mutates state.
func (p *Passkey) ApplyAssertion(count uint32, at time.Time) {
	p.SignCount = count
	used := at
	p.LastUsedAt = &used
}

// CounterRegressed reports whether the presented signature counter indicates a
// cloned authenticator. Authenticators without a counter report zero on every
// assertion; the regression rule only applies once either side is non-zero.
func (p Passkey) CounterRegressed(presented uint32) bool {
	if p.SignCount == 0 && presented == 0 {
		return false
	}
	return presented <= p.SignCount
}
