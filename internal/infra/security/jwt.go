package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrTokenInvalid indicates the token is malformed or its signature does not verify.
	ErrTokenInvalid = errors.New("jwt: token invalid")
	// ErrTokenExpired indicates the token is past its embedded expiry.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrKeyIDMissing indicates no kid is associated with the supplied key.
	ErrKeyIDMissing = errors.New("jwt: missing key identifier")
)

const (
	defaultSessionTokenTTL   = 72 * time.Hour
	defaultTemporaryTokenTTL = 10 * time.Minute
)

// TokenClaims binds a verified identity to either a session reference (full
// token) or a purpose tag (temporary token bridging a multi-step flow).
// Exactly one of SessionID and Purpose is set.
type TokenClaims struct {
	IdentityID string `json:"uid"`
	SessionID  string `json:"sid,omitempty"`
	Purpose    string `json:"prp,omitempty"`
	jwt.RegisteredClaims
}

// IsTemporary reports whether the token carries a purpose tag instead of a
// session reference.
func (c TokenClaims) IsTemporary() bool {
	return c.Purpose != ""
}

// TokenManager mints and validates the bearer tokens issued by this service.
type TokenManager struct {
	provider KeyProvider
	kid      string
	issuer   string
	audience []string

	mu         sync.RWMutex
	publicKeys map[string]*rsa.PublicKey

	now func() time.Time
}

// NewTokenManager constructs a TokenManager signing with the provider's key
// under the supplied kid.
func NewTokenManager(provider KeyProvider, kid, issuer string) (*TokenManager, error) {
	if provider == nil {
		return nil, fmt.Errorf("jwt: key provider is required")
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}

	m := &TokenManager{
		provider:   provider,
		kid:        kid,
		issuer:     issuer,
		audience:   []string{issuer},
		publicKeys: make(map[string]*rsa.PublicKey),
		now:        func() time.Time { return time.Now().UTC() },
	}

	if key, err := provider.GetVerificationKey(kid); err == nil {
		m.publicKeys[kid] = key
	}

	return m, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (m *TokenManager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// Issue mints a full session token binding the identity and session ids.
func (m *TokenManager) Issue(identityID, sessionID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("jwt: session id is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTokenTTL
	}
	return m.sign(TokenClaims{IdentityID: identityID, SessionID: sessionID}, ttl)
}

// IssueTemporary mints a short-lived purpose-scoped token that grants no
// session access.
func (m *TokenManager) IssueTemporary(identityID, purpose string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(purpose) == "" {
		return "", fmt.Errorf("jwt: purpose is required")
	}
	if ttl <= 0 {
		ttl = defaultTemporaryTokenTTL
	}
	return m.sign(TokenClaims{IdentityID: identityID, Purpose: purpose}, ttl)
}

func (m *TokenManager) sign(claims TokenClaims, ttl time.Duration) (string, error) {
	if strings.TrimSpace(claims.IdentityID) == "" {
		return "", fmt.Errorf("jwt: identity id is required")
	}

	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.IdentityID,
		Issuer:    m.issuer,
		Audience:  m.audience,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	signingKey, err := m.provider.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	token.Header["kid"] = m.kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// Verify validates the signature and registered claims of a bearer token.
// Claims are never trusted before the signature checks out.
func (m *TokenManager) Verify(token string) (*TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, ErrKeyIDMissing
		}

		return m.verificationKey(kid)
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.IdentityID) == "" {
		return nil, ErrTokenInvalid
	}
	if claims.SessionID == "" && claims.Purpose == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// RegisterPublicKey associates a kid with a public key for JWKS publication
// and future verification.
func (m *TokenManager) RegisterPublicKey(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrKeyIDMissing
	}
	if key == nil {
		return fmt.Errorf("jwt: public key for %s is nil", kid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicKeys[kid] = key
	return nil
}

func (m *TokenManager) verificationKey(kid string) (*rsa.PublicKey, error) {
	m.mu.RLock()
	key, ok := m.publicKeys[kid]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	fetched, err := m.provider.GetVerificationKey(kid)
	if err != nil {
		return nil, err
	}
	_ = m.RegisterPublicKey(kid, fetched)
	return fetched, nil
}

// JWKS produces the JSON Web Key Set for registered keys.
func (m *TokenManager) JWKS() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]map[string]string, 0, len(m.publicKeys))
	for kid, key := range m.publicKeys {
		if key == nil {
			continue
		}
		keys = append(keys, map[string]string{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}

	return json.Marshal(map[string]any{"keys": keys})
}
