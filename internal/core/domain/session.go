package domain

import "time"

// Session represents a persisted login session bound to a device.
type Session struct {
	ID          string
	IdentityID  string
	Fingerprint string
	IP          string
	UserAgent   *string
	CreatedAt   time.Time
	LastActive  time.Time
}

// IsStale reports whether the session has been inactive beyond the supplied
// staleness horizon at the given moment.
func (s Session) IsStale(at time.Time, horizon time.Duration) bool {
	if horizon <= 0 {
		return false
	}
	return s.LastActive.Add(horizon).Before(at)
}

// Touch refreshes the last-active timestamp.
func (s *Session) Touch(at time.Time) {
	s.LastActive = at
}
