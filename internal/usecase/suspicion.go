package usecase

import (
	"context"
	"fmt"

	"github.com/arklim/social-platform-auth/internal/core/port"
)

// SuspicionService classifies login attempts against the identity's history.
// The heuristic is advisory: it flags attempts, it never denies access.
type SuspicionService struct {
	identities port.IdentityRepository
}

// NewSuspicionService constructs a suspicion classifier.
func NewSuspicionService(identities port.IdentityRepository) *SuspicionService {
	return &SuspicionService{identities: identities}
}

// Classify reports whether the attempt looks novel. The first successful
// login is never suspicious. An attempt matching a prior successful login's
// address or fingerprint, or a trusted device record, is known. Only an
// attempt matching none of those is suspicious.
func (s *SuspicionService) Classify(ctx context.Context, identityID, ip, fingerprint string) (bool, error) {
	history, err := s.identities.ListLoginHistory(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("list login history: %w", err)
	}

	seenSuccess := false
	for _, entry := range history {
		if !entry.Succeeded {
			continue
		}
		seenSuccess = true
		if ip != "" && entry.IP == ip {
			return false, nil
		}
		if fingerprint != "" && entry.Fingerprint == fingerprint {
			return false, nil
		}
	}

	if !seenSuccess {
		return false, nil
	}

	if fingerprint != "" {
		devices, err := s.identities.ListTrustedDevices(ctx, identityID)
		if err != nil {
			return false, fmt.Errorf("list trusted devices: %w", err)
		}
		for _, device := range devices {
			if device.Fingerprint == fingerprint {
				return false, nil
			}
		}
	}

	return true, nil
}
