package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// fakeIdentityRepo backs identity persistence with maps for service tests.
type fakeIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]domain.Identity
	twoFactor  map[string]domain.TwoFactorConfig
	history    map[string][]domain.LoginHistoryEntry
	trusted    map[string][]domain.TrustedDevice
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{
		identities: make(map[string]domain.Identity),
		twoFactor:  make(map[string]domain.TwoFactorConfig),
		history:    make(map[string][]domain.LoginHistoryEntry),
		trusted:    make(map[string][]domain.TrustedDevice),
	}
}

func (r *fakeIdentityRepo) add(identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.ID] = identity
}

func (r *fakeIdentityRepo) Create(_ context.Context, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.identities {
		if existing.ID == identity.ID || existing.Email == identity.Email || existing.Username == identity.Username {
			return repository.ErrDuplicate
		}
	}
	r.identities[identity.ID] = identity
	return nil
}

func (r *fakeIdentityRepo) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := identity
	return &copied, nil
}

func (r *fakeIdentityRepo) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, identity := range r.identities {
		if identity.Email == email {
			copied := identity
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeIdentityRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	r.identities[id] = identity
	return nil
}

func (r *fakeIdentityRepo) SetBanned(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.Banned = true
	identity.BanReason = &reason
	r.identities[id] = identity
	return nil
}

func (r *fakeIdentityRepo) ClearSuspension(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.SuspendedUntil = nil
	identity.SuspendedReason = nil
	r.identities[id] = identity
	return nil
}

func (r *fakeIdentityRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.LastLogin = &at
	r.identities[id] = identity
	return nil
}

func (r *fakeIdentityRepo) GetTwoFactor(_ context.Context, identityID string) (*domain.TwoFactorConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.twoFactor[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := cfg
	copied.BackupCodes = append([]domain.BackupCode(nil), cfg.BackupCodes...)
	return &copied, nil
}

func (r *fakeIdentityRepo) SaveTwoFactor(_ context.Context, identityID string, cfg domain.TwoFactorConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := cfg
	stored.BackupCodes = append([]domain.BackupCode(nil), cfg.BackupCodes...)
	r.twoFactor[identityID] = stored
	return nil
}

func (r *fakeIdentityRepo) DeleteTwoFactor(_ context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.twoFactor[identityID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.twoFactor, identityID)
	return nil
}

func (r *fakeIdentityRepo) AppendLoginHistory(_ context.Context, identityID string, entry domain.LoginHistoryEntry, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[identityID] = domain.AppendLoginHistory(r.history[identityID], entry, limit)
	return nil
}

func (r *fakeIdentityRepo) ListLoginHistory(_ context.Context, identityID string) ([]domain.LoginHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LoginHistoryEntry(nil), r.history[identityID]...), nil
}

func (r *fakeIdentityRepo) AddTrustedDevice(_ context.Context, identityID string, device domain.TrustedDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trusted[identityID] = append(r.trusted[identityID], device)
	return nil
}

func (r *fakeIdentityRepo) ListTrustedDevices(_ context.Context, identityID string) ([]domain.TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TrustedDevice(nil), r.trusted[identityID]...), nil
}

// fakeSessionRepo keeps sessions in a map keyed by session id.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return repository.ErrDuplicate
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := session
	return &copied, nil
}

func (r *fakeSessionRepo) ListByIdentity(_ context.Context, identityID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, session := range r.sessions {
		if session.IdentityID == identityID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, identityID, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok || session.IdentityID != identityID {
		return repository.ErrNotFound
	}
	session.LastActive = at
	r.sessions[sessionID] = session
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, identityID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok || session.IdentityID != identityID {
		return repository.ErrNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *fakeSessionRepo) DeleteAllExcept(_ context.Context, identityID, keepSessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, session := range r.sessions {
		if session.IdentityID == identityID && id != keepSessionID {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeSessionRepo) DeleteAll(_ context.Context, identityID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, session := range r.sessions {
		if session.IdentityID == identityID {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeSessionRepo) DeleteStale(_ context.Context, identityID string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, session := range r.sessions {
		if session.IdentityID == identityID && session.LastActive.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// fakePasskeyRepo keys credentials by their raw credential id.
type fakePasskeyRepo struct {
	mu       sync.Mutex
	passkeys map[string]domain.Passkey
}

func newFakePasskeyRepo() *fakePasskeyRepo {
	return &fakePasskeyRepo{passkeys: make(map[string]domain.Passkey)}
}

func (r *fakePasskeyRepo) Create(_ context.Context, passkey domain.Passkey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(passkey.CredentialID)
	if _, ok := r.passkeys[key]; ok {
		return repository.ErrDuplicate
	}
	r.passkeys[key] = passkey
	return nil
}

func (r *fakePasskeyRepo) GetByCredentialID(_ context.Context, credentialID []byte) (*domain.Passkey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	passkey, ok := r.passkeys[string(credentialID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := passkey
	return &copied, nil
}

func (r *fakePasskeyRepo) ListByIdentity(_ context.Context, identityID string) ([]domain.Passkey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Passkey
	for _, passkey := range r.passkeys {
		if passkey.IdentityID == identityID {
			out = append(out, passkey)
		}
	}
	return out, nil
}

func (r *fakePasskeyRepo) UpdateAssertion(_ context.Context, credentialID []byte, signCount uint32, lastUsedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	passkey, ok := r.passkeys[string(credentialID)]
	if !ok {
		return repository.ErrNotFound
	}
	passkey.SignCount = signCount
	passkey.LastUsedAt = &lastUsedAt
	r.passkeys[string(credentialID)] = passkey
	return nil
}

func (r *fakePasskeyRepo) Delete(_ context.Context, identityID string, credentialID []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	passkey, ok := r.passkeys[string(credentialID)]
	if !ok || passkey.IdentityID != identityID {
		return repository.ErrNotFound
	}
	delete(r.passkeys, string(credentialID))
	return nil
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.IdentityRegisteredEvent
	banned     []domain.IdentityBannedEvent
	succeeded  []domain.LoginSucceededEvent
	failed     []domain.LoginFailedEvent
	twoFactor  []domain.TwoFactorStateChangedEvent
	passkeys   []domain.PasskeyLifecycleEvent
	revoked    []domain.SessionRevokedEvent
}

func (p *recordingPublisher) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

func (p *recordingPublisher) PublishIdentityBanned(_ context.Context, event domain.IdentityBannedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banned = append(p.banned, event)
	return nil
}

func (p *recordingPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, event)
	return nil
}

func (p *recordingPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return nil
}

func (p *recordingPublisher) PublishTwoFactorStateChanged(_ context.Context, event domain.TwoFactorStateChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.twoFactor = append(p.twoFactor, event)
	return nil
}

func (p *recordingPublisher) PublishPasskeyLifecycle(_ context.Context, event domain.PasskeyLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passkeys = append(p.passkeys, event)
	return nil
}

func (p *recordingPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}
