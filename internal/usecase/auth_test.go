package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository/memory"
)

type authFixture struct {
	svc        *AuthService
	identities *fakeIdentityRepo
	sessions   *SessionService
	twoFactor  *TwoFactorService
	passkeys   *PasskeyService
	tokens     *security.TokenManager
	events     *recordingPublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	provider, err := security.NewStaticKeyProvider("test-key", key)
	if err != nil {
		t.Fatalf("NewStaticKeyProvider returned error: %v", err)
	}
	tokens, err := security.NewTokenManager(provider, "test-key", "auth-test")
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	cfg := &config.AppConfig{}
	cfg.JWT.SessionTokenTTL = time.Hour
	cfg.JWT.TemporaryTokenTTL = 10 * time.Minute
	cfg.Session.HistoryLimit = 50

	identities := newFakeIdentityRepo()
	events := &recordingPublisher{}
	sessions := NewSessionService(newFakeSessionRepo(), events, 30*24*time.Hour)
	twoFactor := NewTwoFactorService(identities, events, "auth-test")
	passkeys := NewPasskeyService(identities, newFakePasskeyRepo(), memory.NewChallengeStore(), events, testPasskeySettings, 5*time.Minute)
	suspicion := NewSuspicionService(identities)

	svc := NewAuthService(cfg, identities, sessions, twoFactor, passkeys, suspicion, tokens, events)
	return &authFixture{
		svc:        svc,
		identities: identities,
		sessions:   sessions,
		twoFactor:  twoFactor,
		passkeys:   passkeys,
		tokens:     tokens,
		events:     events,
	}
}

func defaultLoginInput() LoginInput {
	return LoginInput{
		Email:       "ada@example.com",
		Password:    "q7#mZk2!wHd9Lp",
		IP:          "198.51.100.1",
		Fingerprint: "fp-laptop",
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	f.identities.add(newTestIdentity(t, "q7#mZk2!wHd9Lp"))

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if result.RequiresTwoFactor {
		t.Fatal("2FA required without enrollment")
	}
	if result.Token == "" {
		t.Fatal("missing session token")
	}
	if result.Session == nil {
		t.Fatal("missing session")
	}
	if result.Suspicious {
		t.Fatal("first login flagged suspicious")
	}

	claims, err := f.tokens.Verify(result.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.SessionID != result.Session.ID {
		t.Fatalf("token session mismatch: %s != %s", claims.SessionID, result.Session.ID)
	}

	history, err := f.identities.ListLoginHistory(context.Background(), result.Identity.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 || !history[0].Succeeded {
		t.Fatalf("unexpected history: %+v", history)
	}

	if len(f.events.succeeded) != 1 {
		t.Fatalf("expected 1 success event, got %d", len(f.events.succeeded))
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.svc.Login(context.Background(), defaultLoginInput()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)

	input := defaultLoginInput()
	input.Password = "wrong-password-99!"

	if _, err := f.svc.Login(context.Background(), input); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	history, err := f.identities.ListLoginHistory(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 || history[0].Succeeded {
		t.Fatalf("failed attempt not recorded: %+v", history)
	}

	if len(f.events.failed) != 1 || f.events.failed[0].Reason != "invalid_credentials" {
		t.Fatalf("unexpected failure events: %+v", f.events.failed)
	}
}

func TestLoginBannedIdentity(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	reason := "abuse"
	identity.Banned = true
	identity.BanReason = &reason
	f.identities.add(identity)

	_, err := f.svc.Login(context.Background(), defaultLoginInput())
	if !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}

	var banned *AccountBannedError
	if !errors.As(err, &banned) || banned.Reason != "abuse" {
		t.Fatalf("ban reason lost: %v", err)
	}
}

func TestLoginActiveSuspension(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	until := time.Now().UTC().Add(time.Hour)
	identity.SuspendedUntil = &until
	f.identities.add(identity)

	_, err := f.svc.Login(context.Background(), defaultLoginInput())
	if !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}

	var suspended *AccountSuspendedError
	if !errors.As(err, &suspended) || !suspended.Until.Equal(until) {
		t.Fatalf("suspension window lost: %v", err)
	}
}

func TestLoginExpiredSuspensionAutoClears(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	until := time.Now().UTC().Add(-time.Hour)
	identity.SuspendedUntil = &until
	f.identities.add(identity)

	if _, err := f.svc.Login(context.Background(), defaultLoginInput()); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	stored, err := f.identities.GetByID(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("lookup identity: %v", err)
	}
	if stored.SuspendedUntil != nil {
		t.Fatal("expired suspension not cleared")
	}
}

func TestLoginUnderageBansIdentity(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	identity.BirthDate = time.Now().UTC().AddDate(-15, 0, 0)
	f.identities.add(identity)

	_, err := f.svc.Login(context.Background(), defaultLoginInput())
	if !errors.Is(err, ErrUnderage) {
		t.Fatalf("expected ErrUnderage, got %v", err)
	}

	var underage *UnderageError
	if !errors.As(err, &underage) || underage.Age != 15 {
		t.Fatalf("age lost: %v", err)
	}

	stored, lookupErr := f.identities.GetByID(context.Background(), identity.ID)
	if lookupErr != nil {
		t.Fatalf("lookup identity: %v", lookupErr)
	}
	if !stored.Banned || stored.BanReason == nil || *stored.BanReason != domain.BanReasonUnderage {
		t.Fatalf("identity not banned as underage: %+v", stored)
	}

	if len(f.events.banned) != 1 || f.events.banned[0].Reason != domain.BanReasonUnderage {
		t.Fatalf("unexpected ban events: %+v", f.events.banned)
	}
}

func TestLoginWithTwoFactorEnabled(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)
	enrollment := enrollTwoFactor(t, f.twoFactor, f.identities, identity)

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if !result.RequiresTwoFactor {
		t.Fatal("2FA step not required")
	}
	if result.TemporaryToken == "" {
		t.Fatal("missing temporary token")
	}
	if result.Token != "" || result.Session != nil {
		t.Fatal("full token issued before 2FA")
	}

	claims, err := f.tokens.Verify(result.TemporaryToken)
	if err != nil {
		t.Fatalf("temporary token does not verify: %v", err)
	}
	if !claims.IsTemporary() || claims.Purpose != PurposePendingTwoFactor {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	completed, err := f.svc.CompleteTwoFactor(context.Background(), result.TemporaryToken, code, "198.51.100.1", "fp-laptop", nil)
	if err != nil {
		t.Fatalf("CompleteTwoFactor returned error: %v", err)
	}
	if completed.Token == "" || completed.Session == nil {
		t.Fatal("full login not completed")
	}

	if len(f.events.succeeded) != 1 || f.events.succeeded[0].Method != LoginMethodTwoFactor {
		t.Fatalf("unexpected success events: %+v", f.events.succeeded)
	}
}

func TestCompleteTwoFactorWithBackupCode(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)
	enrollment := enrollTwoFactor(t, f.twoFactor, f.identities, identity)

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	completed, err := f.svc.CompleteTwoFactor(context.Background(), result.TemporaryToken, enrollment.BackupCodes[0], "198.51.100.1", "fp-laptop", nil)
	if err != nil {
		t.Fatalf("CompleteTwoFactor returned error: %v", err)
	}
	if completed.Session == nil {
		t.Fatal("session not created")
	}

	if f.events.succeeded[0].Method != LoginMethodBackupCode {
		t.Fatalf("unexpected method: %s", f.events.succeeded[0].Method)
	}
}

func TestCompleteTwoFactorRejectsWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)
	enrollTwoFactor(t, f.twoFactor, f.identities, identity)

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if _, err := f.svc.CompleteTwoFactor(context.Background(), result.TemporaryToken, "000000", "198.51.100.1", "fp-laptop", nil); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid, got %v", err)
	}

	if len(f.events.failed) != 1 || f.events.failed[0].Reason != "two_factor_code_invalid" {
		t.Fatalf("unexpected failure events: %+v", f.events.failed)
	}
}

func TestCompleteTwoFactorRejectsSessionToken(t *testing.T) {
	f := newAuthFixture(t)
	f.identities.add(newTestIdentity(t, "q7#mZk2!wHd9Lp"))

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if _, err := f.svc.CompleteTwoFactor(context.Background(), result.Token, "123456", "198.51.100.1", "fp-laptop", nil); !errors.Is(err, ErrTokenPurposeMismatch) {
		t.Fatalf("expected ErrTokenPurposeMismatch, got %v", err)
	}
}

func TestAuthorizeValidToken(t *testing.T) {
	f := newAuthFixture(t)
	f.identities.add(newTestIdentity(t, "q7#mZk2!wHd9Lp"))

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	authCtx, err := f.svc.Authorize(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if authCtx.Identity.ID != result.Identity.ID {
		t.Fatalf("unexpected identity: %s", authCtx.Identity.ID)
	}
	if authCtx.Session.ID != result.Session.ID {
		t.Fatalf("unexpected session: %s", authCtx.Session.ID)
	}
}

func TestAuthorizeRejectsTemporaryToken(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)
	enrollTwoFactor(t, f.twoFactor, f.identities, identity)

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if _, err := f.svc.Authorize(context.Background(), result.TemporaryToken); !errors.Is(err, ErrTokenPurposeMismatch) {
		t.Fatalf("expected ErrTokenPurposeMismatch, got %v", err)
	}
}

func TestAuthorizeRevokedSession(t *testing.T) {
	f := newAuthFixture(t)
	f.identities.add(newTestIdentity(t, "q7#mZk2!wHd9Lp"))

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := f.svc.Logout(context.Background(), result.Identity.ID, result.Session.ID); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	if _, err := f.svc.Authorize(context.Background(), result.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestAuthorizeBansUnderageMidSession(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// A corrected birth date moves the identity under the threshold.
	updated := result.Identity
	updated.BirthDate = time.Now().UTC().AddDate(-16, 0, 0)
	f.identities.add(updated)

	if _, err := f.svc.Authorize(context.Background(), result.Token); !errors.Is(err, ErrUnderage) {
		t.Fatalf("expected ErrUnderage, got %v", err)
	}

	stored, lookupErr := f.identities.GetByID(context.Background(), identity.ID)
	if lookupErr != nil {
		t.Fatalf("lookup identity: %v", lookupErr)
	}
	if !stored.Banned {
		t.Fatal("identity not banned on authenticated request")
	}
}

func TestAuthorizeRefreshesLastActive(t *testing.T) {
	f := newAuthFixture(t)
	f.identities.add(newTestIdentity(t, "q7#mZk2!wHd9Lp"))

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return start })
	f.sessions.WithClock(func() time.Time { return start })
	f.tokens.WithClock(func() time.Time { return start })

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	later := start.Add(20 * time.Minute)
	f.svc.WithClock(func() time.Time { return later })
	f.sessions.WithClock(func() time.Time { return later })
	f.tokens.WithClock(func() time.Time { return later })

	if _, err := f.svc.Authorize(context.Background(), result.Token); err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}

	session, err := f.sessions.Get(context.Background(), result.Session.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !session.LastActive.Equal(later) {
		t.Fatalf("last active not refreshed: %v", session.LastActive)
	}
}

func TestLoginFlagsNovelDevice(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)
	seedSuccess(t, f.identities, identity.ID, "203.0.113.50", "fp-old")

	result, err := f.svc.Login(context.Background(), defaultLoginInput())
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !result.Suspicious {
		t.Fatal("novel device not flagged")
	}
	if len(f.events.succeeded) != 1 || !f.events.succeeded[0].Suspicious {
		t.Fatalf("success event missing suspicious flag: %+v", f.events.succeeded)
	}
}

func TestLoginRecordsTrustedDevice(t *testing.T) {
	f := newAuthFixture(t)
	f.svc.cfg.Session.HistoryLimit = 1
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)

	first := defaultLoginInput()
	if _, err := f.svc.Login(context.Background(), first); err != nil {
		t.Fatalf("first login returned error: %v", err)
	}

	devices, err := f.identities.ListTrustedDevices(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("list trusted devices: %v", err)
	}
	if len(devices) != 1 || devices[0].Fingerprint != first.Fingerprint {
		t.Fatalf("trusted device not recorded: %+v", devices)
	}

	// A novel login rotates the first entry out of the one-slot history ring.
	second := defaultLoginInput()
	second.IP = "192.0.2.77"
	second.Fingerprint = "fp-phone"
	result, err := f.svc.Login(context.Background(), second)
	if err != nil {
		t.Fatalf("second login returned error: %v", err)
	}
	if !result.Suspicious {
		t.Fatal("novel device not flagged")
	}

	// The original fingerprint is gone from history, but its trusted device
	// record keeps it known even from a fresh address.
	third := defaultLoginInput()
	third.IP = "203.0.113.9"
	result, err = f.svc.Login(context.Background(), third)
	if err != nil {
		t.Fatalf("third login returned error: %v", err)
	}
	if result.Suspicious {
		t.Fatal("trusted device flagged suspicious")
	}
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)

	if err := f.svc.ChangePassword(context.Background(), identity, "q7#mZk2!wHd9Lp", "Tq9$vRe5!uXk27"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}

	input := defaultLoginInput()
	input.Password = "Tq9$vRe5!uXk27"
	if _, err := f.svc.Login(context.Background(), input); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	input.Password = "q7#mZk2!wHd9Lp"
	if _, err := f.svc.Login(context.Background(), input); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)

	err := f.svc.ChangePassword(context.Background(), identity, "wrong-password", "Tq9$vRe5!uXk27")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := f.svc.Login(context.Background(), defaultLoginInput()); err != nil {
		t.Fatalf("original password no longer accepted: %v", err)
	}
}

func TestChangePasswordEnforcesPolicy(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)

	err := f.svc.ChangePassword(context.Background(), identity, "q7#mZk2!wHd9Lp", "abc123")
	var validation *security.PasswordValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected password validation error, got %v", err)
	}
}

func TestPasskeyLoginRunsSharedTail(t *testing.T) {
	f := newAuthFixture(t)
	identity := newTestIdentity(t, "q7#mZk2!wHd9Lp")
	f.identities.add(identity)

	key, cose := newTestAuthenticator(t)
	credentialID := []byte("credential-0001")

	options, err := f.passkeys.BeginRegistration(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("BeginRegistration returned error: %v", err)
	}
	authData := passkeyAuthData(t, 0x41, 0, credentialID, cose)
	attestation := passkeyAttestation(t, authData)
	clientDataJSON := passkeyClientData(t, "webauthn.create", options.Challenge)
	if _, err := f.passkeys.FinishRegistration(context.Background(), identity.ID, attestation, clientDataJSON, "laptop", nil); err != nil {
		t.Fatalf("FinishRegistration returned error: %v", err)
	}

	authOptions, err := f.passkeys.BeginAuthentication(context.Background(), identity.Email)
	if err != nil {
		t.Fatalf("BeginAuthentication returned error: %v", err)
	}
	loginAuthData := passkeyAuthData(t, 0x05, 2, nil, nil)
	loginClientData := passkeyClientData(t, "webauthn.get", authOptions.Challenge)
	signature := signPasskeyAssertion(t, key, loginAuthData, loginClientData)

	result, err := f.svc.PasskeyLogin(context.Background(), PasskeyAssertionInput{
		FlowID:            authOptions.FlowID,
		CredentialID:      credentialID,
		AuthenticatorData: loginAuthData,
		ClientDataJSON:    loginClientData,
		Signature:         signature,
	}, "198.51.100.1", "fp-laptop", nil)
	if err != nil {
		t.Fatalf("PasskeyLogin returned error: %v", err)
	}

	if result.Token == "" || result.Session == nil {
		t.Fatal("passkey login did not complete")
	}
	if len(f.events.succeeded) != 1 || f.events.succeeded[0].Method != LoginMethodPasskey {
		t.Fatalf("unexpected success events: %+v", f.events.succeeded)
	}
}
