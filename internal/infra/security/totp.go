package security

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30 * time.Second
	// totpSkew tolerates ±2 time steps of client clock drift.
	totpSkew = 2

	backupCodeLength = 10
	backupCodeCount  = 10
)

// backupCodeAlphabet avoids ambiguous characters (0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// TOTPEnrollment carries the artifacts of a fresh TOTP setup.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// GenerateTOTPSecret creates a new shared secret scoped to the issuer and
// account, along with the otpauth:// provisioning URI the client renders as a
// QR code.
func GenerateTOTPSecret(issuer, accountName string) (TOTPEnrollment, error) {
	if issuer == "" {
		return TOTPEnrollment{}, fmt.Errorf("totp: issuer is required")
	}
	if accountName == "" {
		return TOTPEnrollment{}, fmt.Errorf("totp: account name is required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      uint(totpPeriod.Seconds()),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("totp: generate secret: %w", err)
	}

	return TOTPEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// ValidateTOTP verifies a six-digit code against the shared secret at the
// supplied moment, absorbing clock drift within the skew window.
func ValidateTOTP(code, secret string, at time.Time) (bool, error) {
	if code == "" || secret == "" {
		return false, nil
	}

	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    uint(totpPeriod.Seconds()),
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("totp: validate code: %w", err)
	}

	return ok, nil
}

// GenerateBackupCodes produces the fixed-size set of single-use recovery
// codes issued alongside a TOTP enrollment.
func GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func generateBackupCode() (string, error) {
	buf := make([]byte, backupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("totp: generate backup code: %w", err)
	}

	out := make([]byte, backupCodeLength)
	for i, b := range buf {
		out[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}

	// Grouped as XXXXX-XXXXX for readability.
	return string(out[:5]) + "-" + string(out[5:]), nil
}
