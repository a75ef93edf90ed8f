// Package securitytest provides helpers for exercising WebAuthn ceremonies
// with software-generated credentials instead of a hardware authenticator.
package securitytest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// COSE constants for an EC2 key signing with ES256.
const (
	coseKeyTypeEC2 = 2
	coseAlgES256   = -7
)

// EncodeCOSEPublicKey builds a COSE EC2/ES256 key from an ECDSA public key.
func EncodeCOSEPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return nil, errors.New("securitytest: P-256 key required")
	}

	size := (pub.Curve.Params().BitSize + 7) / 8
	x := pub.X.FillBytes(make([]byte, size))
	y := pub.Y.FillBytes(make([]byte, size))

	return cbor.Marshal(map[int]any{
		1:  coseKeyTypeEC2,
		3:  coseAlgES256,
		-1: 1, // P-256
		-2: x,
		-3: y,
	})
}
