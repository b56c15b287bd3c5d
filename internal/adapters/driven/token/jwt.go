// Package token mints signed identity tokens for the application behind the
// gate, so it can verify the asserted identity instead of trusting bare
// headers.
package token

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
)

// Issuer signs per-request identity tokens. Tokens are stateless and
// short-lived; they assert the resolved identity and role for exactly one
// upstream hop.
type Issuer struct {
	method jwt.SigningMethod
	key    any
	issuer string
	ttl    time.Duration
}

// identityClaims is the JWT claims structure for identity tokens.
type identityClaims struct {
	jwt.RegisteredClaims
	Role        string `json:"role"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
}

// NewHS256Issuer creates an issuer signing with a shared secret.
func NewHS256Issuer(secret []byte, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity token secret is empty")
	}
	return &Issuer{method: jwt.SigningMethodHS256, key: secret, issuer: issuer, ttl: ttl}, nil
}

// NewRS256Issuer creates an issuer signing with an RSA private key.
func NewRS256Issuer(key *rsa.PrivateKey, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{method: jwt.SigningMethodRS256, key: key, issuer: issuer, ttl: ttl}
}

// Issue signs a token asserting the identity and role.
func (i *Issuer) Issue(id domain.Identity, role string) (string, error) {
	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role:        role,
		Email:       id.Email,
		DisplayName: id.DisplayName,
	}
	return jwt.NewWithClaims(i.method, claims).SignedString(i.key)
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// Try PKCS8 first (modern format), then PKCS1 (legacy RSA format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}

	return rsaKey, nil
}
