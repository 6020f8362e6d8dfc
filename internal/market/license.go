package market

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidLicense = errors.New("invalid license")
	ErrExpiredLicense = errors.New("license has expired")
	ErrLicenseScope   = errors.New("license does not cover this extension")
)

// LicenseClaims are the verified contents of a marketplace license token.
// Subject carries the extension ID the license covers.
type LicenseClaims struct {
	jwt.RegisteredClaims
	Tier string `json:"tier,omitempty"`
}

// LicenseVerifier checks EdDSA-signed license tokens offline against the
// marketplace's published public key.
type LicenseVerifier struct {
	key ed25519.PublicKey
}

// NewLicenseVerifier parses a PEM-encoded ed25519 public key.
func NewLicenseVerifier(pemKey string) (*LicenseVerifier, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("license key is not valid PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing license key: %w", err)
	}

	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("license key is %T, want ed25519", parsed)
	}
	return &LicenseVerifier{key: key}, nil
}

// Verify validates the token's signature and time claims and returns its
// claims. The extension scope is the caller's check.
func (v *LicenseVerifier) Verify(token string) (*LicenseClaims, error) {
	claims := &LicenseClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredLicense
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidLicense, err)
	}
	return claims, nil
}
