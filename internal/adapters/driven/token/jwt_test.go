package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
)

func TestHS256Issuer_RoundTrip(t *testing.T) {
	secret := []byte("test-secret-for-identity-tokens")
	issuer, err := NewHS256Issuer(secret, "shibboleth-gate", 5*time.Minute)
	if err != nil {
		t.Fatalf("NewHS256Issuer error: %v", err)
	}

	id := domain.Identity{
		Username:    "jdoe@example.edu",
		Email:       "jane@example.edu",
		DisplayName: "Jane Doe",
	}
	signed, err := issuer.Issue(id, "editor")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	var claims identityClaims
	parsed, err := jwt.ParseWithClaims(signed, &claims, func(tok *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token is not valid")
	}
	if claims.Subject != "jdoe@example.edu" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "jdoe@example.edu")
	}
	if claims.Issuer != "shibboleth-gate" {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, "shibboleth-gate")
	}
	if claims.Role != "editor" {
		t.Errorf("Role = %q, want %q", claims.Role, "editor")
	}
	if claims.Email != "jane@example.edu" {
		t.Errorf("Email = %q, want %q", claims.Email, "jane@example.edu")
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > 5*time.Minute {
		t.Errorf("ExpiresAt = %v, want within 5m", claims.ExpiresAt)
	}
}

func TestNewHS256Issuer_EmptySecret(t *testing.T) {
	if _, err := NewHS256Issuer(nil, "x", time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestRS256Issuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer := NewRS256Issuer(key, "shibboleth-gate", time.Minute)

	signed, err := issuer.Issue(domain.Identity{Username: "jdoe"}, "author")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token is not valid")
	}
}

func TestLoadPrivateKey_PKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey error: %v", err)
	}
	if loaded.N.Cmp(key.N) != 0 {
		t.Error("loaded key does not match original")
	}
}

func TestLoadPrivateKey_PKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPrivateKey(path); err != nil {
		t.Errorf("LoadPrivateKey error: %v", err)
	}
}

func TestLoadPrivateKey_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte("not pem at all"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrivateKey(path); err == nil {
		t.Error("expected error for non-PEM data")
	}
}
