package domain

import "time"

// Role is the coarse account role tag carried by an identity. The tag is
// stored and surfaced but never evaluated here; authorization belongs to a
// separate service.
type Role string

// RoleUser is the role every new identity starts with.
const RoleUser Role = "user"

// BanReasonUnderage is the fixed reason recorded when the age gate trips.
const BanReasonUnderage = "underage"

// Identity mirrors the persisted representation in the identities table.
type Identity struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	BirthDate    time.Time
	Role         Role

	Banned          bool
	BanReason       *string
	SuspendedUntil  *time.Time
	SuspendedReason *string

	RegisteredAt time.Time
	LastLogin    *time.Time
}

// AgeAt computes the identity's age using calendar-aware subtraction: the year
// difference is decremented when the current month/day precedes the birth
// month/day.
func (i Identity) AgeAt(at time.Time) int {
	at = at.UTC()
	birth := i.BirthDate.UTC()

	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}
	return age
}

// Ban flags the identity as banned with the supplied reason.
// Returns true when the identity changed state.
func (i *Identity) Ban(reason string) bool {
	if i.Banned {
		return false
	}
	i.Banned = true
	i.BanReason = &reason
	return true
}

// IsSuspended reports whether a suspension is still in force at the supplied moment.
func (i Identity) IsSuspended(at time.Time) bool {
	return i.SuspendedUntil != nil && i.SuspendedUntil.After(at)
}

// ClearExpiredSuspension lifts a suspension whose expiry has passed.
// Returns true when the suspension fields were cleared.
func (i *Identity) ClearExpiredSuspension(at time.Time) bool {
	if i.SuspendedUntil == nil || i.SuspendedUntil.After(at) {
		return false
	}
	i.SuspendedUntil = nil
	i.SuspendedReason = nil
	return true
}

// BackupCode is a single-use recovery code attached to a two-factor config.
type BackupCode struct {
	Code string
	Used bool
}

// TwoFactorConfig holds the TOTP state owned by an identity. The secret is
// present only while 2FA is being configured or is enabled.
type TwoFactorConfig struct {
	Enabled     bool
	Secret      string
	BackupCodes []BackupCode
}

// ConsumeBackupCode marks the first unused code matching the supplied value as
// used. It returns true only on the first successful consumption; a used code
// never matches again.
func (c *TwoFactorConfig) ConsumeBackupCode(code string) bool {
	for i := range c.BackupCodes {
		if c.BackupCodes[i].Used || c.BackupCodes[i].Code != code {
			continue
		}
		c.BackupCodes[i].Used = true
		return true
	}
	return false
}

// RemainingBackupCodes counts codes that have not been consumed yet.
func (c TwoFactorConfig) RemainingBackupCodes() int {
	remaining := 0
	for _, bc := range c.BackupCodes {
		if !bc.Used {
			remaining++
		}
	}
	return remaining
}

// TrustedDevice records a device fingerprint the identity has vouched for.
type TrustedDevice struct {
	Fingerprint string
	Label       *string
	AddedAt     time.Time
}

// LoginHistoryEntry is one append-only record of a login attempt.
type LoginHistoryEntry struct {
	IP            string
	Fingerprint   string
	Succeeded     bool
	FailureReason *string
	At            time.Time
}

// AppendLoginHistory appends an entry and enforces ring-buffer semantics:
// when the history grows beyond limit entries the oldest are dropped first.
func AppendLoginHistory(history []LoginHistoryEntry, entry LoginHistoryEntry, limit int) []LoginHistoryEntry {
	history = append(history, entry)
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
