package security

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrCeremonyVerification indicates the signed ceremony response did not
	// verify against the expected challenge, origin, relying party, or key.
	ErrCeremonyVerification = errors.New("webauthn: ceremony verification failed")
)

// Authenticator data flag bits.
const (
	flagUserPresent        byte = 0x01
	flagUserVerified       byte = 0x04
	flagAttestedCredential byte = 0x40
)

// COSE algorithm identifiers this engine accepts.
const (
	coseAlgES256 = -7
	coseAlgEdDSA = -8
	coseAlgRS256 = -257
)

// COSE key types.
const (
	coseKeyTypeOKP = 1
	coseKeyTypeEC2 = 2
	coseKeyTypeRSA = 3
)

// RegistrationResult carries the verified artifacts of a registration ceremony.
type RegistrationResult struct {
	CredentialID []byte
	// PublicKey is the raw COSE-encoded credential public key as delivered by
	// the authenticator; it is stored verbatim and re-parsed on assertion.
	PublicKey []byte
	SignCount uint32
	AAGUID    []byte
}

// AssertionResult carries the verified artifacts of an authentication ceremony.
type AssertionResult struct {
	SignCount    uint32
	UserVerified bool
}

type attestationObject struct {
	Format   string          `cbor:"fmt"`
	AttStmt  cbor.RawMessage `cbor:"attStmt"`
	AuthData []byte          `cbor:"authData"`
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

type coseKey struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint"`
	Curve     int    `cbor:"-1,keyasint,omitempty"`
	X         []byte `cbor:"-2,keyasint,omitempty"`
	Y         []byte `cbor:"-3,keyasint,omitempty"`
}

type coseRSAKey struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint"`
	Modulus   []byte `cbor:"-1,keyasint"`
	Exponent  []byte `cbor:"-2,keyasint"`
}

// VerifyRegistration validates a registration ceremony response: client data
// (type/challenge/origin), authenticator data (relying-party binding, user
// presence, attested credential), and extracts the new credential.
// Attestation statements are not chain-validated: the relying party accepts
// authenticators on first use, which matches the "none" attestation policy
// requested in the registration options.
func VerifyRegistration(attestation, clientDataJSON, expectedChallenge []byte, rpID, origin string) (*RegistrationResult, error) {
	if err := verifyClientData(clientDataJSON, "webauthn.create", expectedChallenge, origin); err != nil {
		return nil, err
	}

	var attObj attestationObject
	if err := cbor.Unmarshal(attestation, &attObj); err != nil {
		return nil, fmt.Errorf("%w: decode attestation object: %v", ErrCeremonyVerification, err)
	}

	authData, err := parseAuthenticatorData(attObj.AuthData, rpID)
	if err != nil {
		return nil, err
	}
	if authData.Flags&flagAttestedCredential == 0 {
		return nil, fmt.Errorf("%w: missing attested credential data", ErrCeremonyVerification)
	}
	if len(authData.CredentialID) == 0 {
		return nil, fmt.Errorf("%w: empty credential id", ErrCeremonyVerification)
	}

	// Reject unparseable or unsupported keys now rather than at first login.
	if _, _, err := parseCOSEPublicKey(authData.PublicKey); err != nil {
		return nil, err
	}

	return &RegistrationResult{
		CredentialID: authData.CredentialID,
		PublicKey:    authData.PublicKey,
		SignCount:    authData.SignCount,
		AAGUID:       authData.AAGUID,
	}, nil
}

// VerifyAssertion validates an authentication ceremony response against the
// stored COSE public key. The signature covers authenticatorData followed by
// SHA-256(clientDataJSON).
func VerifyAssertion(publicKeyCOSE, authenticatorData, clientDataJSON, signature, expectedChallenge []byte, rpID, origin string) (*AssertionResult, error) {
	if err := verifyClientData(clientDataJSON, "webauthn.get", expectedChallenge, origin); err != nil {
		return nil, err
	}

	authData, err := parseAuthenticatorData(authenticatorData, rpID)
	if err != nil {
		return nil, err
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := make([]byte, 0, len(authenticatorData)+len(clientDataHash))
	signed = append(signed, authenticatorData...)
	signed = append(signed, clientDataHash[:]...)

	key, alg, err := parseCOSEPublicKey(publicKeyCOSE)
	if err != nil {
		return nil, err
	}

	if err := verifySignature(key, alg, signed, signature); err != nil {
		return nil, err
	}

	return &AssertionResult{
		SignCount:    authData.SignCount,
		UserVerified: authData.Flags&flagUserVerified != 0,
	}, nil
}

func verifyClientData(raw []byte, expectedType string, expectedChallenge []byte, origin string) error {
	var cd clientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return fmt.Errorf("%w: decode client data: %v", ErrCeremonyVerification, err)
	}

	if cd.Type != expectedType {
		return fmt.Errorf("%w: unexpected ceremony type %q", ErrCeremonyVerification, cd.Type)
	}

	challenge, err := base64.RawURLEncoding.DecodeString(cd.Challenge)
	if err != nil {
		return fmt.Errorf("%w: decode challenge: %v", ErrCeremonyVerification, err)
	}
	if len(expectedChallenge) == 0 || subtle.ConstantTimeCompare(challenge, expectedChallenge) != 1 {
		return fmt.Errorf("%w: challenge mismatch", ErrCeremonyVerification)
	}

	if cd.Origin != origin {
		return fmt.Errorf("%w: origin %q not allowed", ErrCeremonyVerification, cd.Origin)
	}

	return nil
}

type authenticatorData struct {
	RPIDHash     []byte
	Flags        byte
	SignCount    uint32
	AAGUID       []byte
	CredentialID []byte
	PublicKey    []byte
}

// parseAuthenticatorData decodes the fixed header and, when the attested
// credential flag is set, the credential section. Layout:
// rpIdHash(32) flags(1) signCount(4) [aaguid(16) credIdLen(2) credId coseKey].
func parseAuthenticatorData(raw []byte, rpID string) (*authenticatorData, error) {
	if len(raw) < 37 {
		return nil, fmt.Errorf("%w: authenticator data too short", ErrCeremonyVerification)
	}

	out := &authenticatorData{
		RPIDHash:  raw[:32],
		Flags:     raw[32],
		SignCount: uint32(raw[33])<<24 | uint32(raw[34])<<16 | uint32(raw[35])<<8 | uint32(raw[36]),
	}

	expectedRPIDHash := sha256.Sum256([]byte(rpID))
	if !bytes.Equal(out.RPIDHash, expectedRPIDHash[:]) {
		return nil, fmt.Errorf("%w: relying party id mismatch", ErrCeremonyVerification)
	}

	if out.Flags&flagUserPresent == 0 {
		return nil, fmt.Errorf("%w: user presence not asserted", ErrCeremonyVerification)
	}

	if out.Flags&flagAttestedCredential == 0 {
		return out, nil
	}

	rest := raw[37:]
	if len(rest) < 18 {
		return nil, fmt.Errorf("%w: truncated credential data", ErrCeremonyVerification)
	}

	out.AAGUID = rest[:16]
	credIDLen := int(rest[16])<<8 | int(rest[17])
	rest = rest[18:]
	if credIDLen == 0 || len(rest) < credIDLen {
		return nil, fmt.Errorf("%w: truncated credential id", ErrCeremonyVerification)
	}

	out.CredentialID = rest[:credIDLen]

	// The COSE key occupies the remainder; extensions after the key are not
	// issued by the options this engine generates.
	out.PublicKey = rest[credIDLen:]
	if len(out.PublicKey) == 0 {
		return nil, fmt.Errorf("%w: missing credential public key", ErrCeremonyVerification)
	}

	return out, nil
}

func parseCOSEPublicKey(raw []byte) (any, int, error) {
	var header coseKey
	if err := cbor.Unmarshal(raw, &header); err != nil {
		return nil, 0, fmt.Errorf("%w: decode public key: %v", ErrCeremonyVerification, err)
	}

	switch header.KeyType {
	case coseKeyTypeEC2:
		if header.Algorithm != coseAlgES256 {
			return nil, 0, fmt.Errorf("%w: unsupported EC2 algorithm %d", ErrCeremonyVerification, header.Algorithm)
		}
		if len(header.X) == 0 || len(header.Y) == 0 {
			return nil, 0, fmt.Errorf("%w: incomplete EC2 key", ErrCeremonyVerification)
		}
		key := &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(header.X),
			Y:     new(big.Int).SetBytes(header.Y),
		}
		if !key.Curve.IsOnCurve(key.X, key.Y) {
			return nil, 0, fmt.Errorf("%w: point not on curve", ErrCeremonyVerification)
		}
		return key, coseAlgES256, nil

	case coseKeyTypeOKP:
		if header.Algorithm != coseAlgEdDSA {
			return nil, 0, fmt.Errorf("%w: unsupported OKP algorithm %d", ErrCeremonyVerification, header.Algorithm)
		}
		if len(header.X) != ed25519.PublicKeySize {
			return nil, 0, fmt.Errorf("%w: bad ed25519 key length", ErrCeremonyVerification)
		}
		return ed25519.PublicKey(header.X), coseAlgEdDSA, nil

	case coseKeyTypeRSA:
		var rsaHeader coseRSAKey
		if err := cbor.Unmarshal(raw, &rsaHeader); err != nil {
			return nil, 0, fmt.Errorf("%w: decode RSA key: %v", ErrCeremonyVerification, err)
		}
		if rsaHeader.Algorithm != coseAlgRS256 {
			return nil, 0, fmt.Errorf("%w: unsupported RSA algorithm %d", ErrCeremonyVerification, rsaHeader.Algorithm)
		}
		if len(rsaHeader.Modulus) == 0 || len(rsaHeader.Exponent) == 0 {
			return nil, 0, fmt.Errorf("%w: incomplete RSA key", ErrCeremonyVerification)
		}
		key := &rsa.PublicKey{
			N: new(big.Int).SetBytes(rsaHeader.Modulus),
			E: int(new(big.Int).SetBytes(rsaHeader.Exponent).Int64()),
		}
		return key, coseAlgRS256, nil
	}

	return nil, 0, fmt.Errorf("%w: unsupported key type %d", ErrCeremonyVerification, header.KeyType)
}

func verifySignature(key any, alg int, signed, signature []byte) error {
	digest := sha256.Sum256(signed)

	switch alg {
	case coseAlgES256:
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: key/algorithm mismatch", ErrCeremonyVerification)
		}
		if !ecdsa.VerifyASN1(pub, digest[:], signature) {
			return fmt.Errorf("%w: ES256 signature invalid", ErrCeremonyVerification)
		}
		return nil

	case coseAlgEdDSA:
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: key/algorithm mismatch", ErrCeremonyVerification)
		}
		if !ed25519.Verify(pub, signed, signature) {
			return fmt.Errorf("%w: EdDSA signature invalid", ErrCeremonyVerification)
		}
		return nil

	case coseAlgRS256:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: key/algorithm mismatch", ErrCeremonyVerification)
		}
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
			return fmt.Errorf("%w: RS256 signature invalid", ErrCeremonyVerification)
		}
		return nil
	}

	return fmt.Errorf("%w: unsupported algorithm %d", ErrCeremonyVerification, alg)
}
