package domain

import "time"

// IdentityRegisteredEvent represents the payload for auth.user.registered messages.
type IdentityRegisteredEvent struct {
	EventID      string
	IdentityID   string
	Username     string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// IdentityBannedEvent represents the payload for auth.user.banned messages.
// Emitted by the age gate and administrative collaborators.
type IdentityBannedEvent struct {
	EventID    string
	IdentityID string
	Reason     string
	Age        *int
	BannedAt   time.Time
	Metadata   map[string]any
}

// LoginSucceededEvent represents the payload for auth.login.succeeded messages.
type LoginSucceededEvent struct {
	EventID     string
	IdentityID  string
	SessionID   string
	Method      string
	IP          string
	Fingerprint string
	Suspicious  bool
	At          time.Time
	Metadata    map[string]any
}

// LoginFailedEvent represents the payload for auth.login.failed messages.
type LoginFailedEvent struct {
	EventID    string
	IdentityID string
	Reason     string
	IP         string
	At         time.Time
	Metadata   map[string]any
}

// TwoFactorStateChangedEvent represents the payload for auth.2fa.enabled and
// auth.2fa.disabled messages.
type TwoFactorStateChangedEvent struct {
	EventID    string
	IdentityID string
	Enabled    bool
	At         time.Time
	Metadata   map[string]any
}

// PasskeyLifecycleEvent represents the payload for auth.passkey.registered and
// auth.passkey.removed messages.
type PasskeyLifecycleEvent struct {
	EventID      string
	IdentityID   string
	CredentialID string
	Label        string
	Registered   bool
	At           time.Time
	Metadata     map[string]any
}

// SessionRevokedEvent represents the payload for auth.session.revoked messages.
type SessionRevokedEvent struct {
	EventID    string
	IdentityID string
	SessionID  string
	Reason     string
	RevokedAt  time.Time
	Metadata   map[string]any
}
