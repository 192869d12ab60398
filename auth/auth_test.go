package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

func writeTestKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "key.pem")
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, pemData, 0600); err != nil {
		t.Fatal(err)
	}

	return path, key
}

func TestReadPrivateKey(t *testing.T) {
	path, key := writeTestKey(t)

	got, err := readPrivateKey(path)
	if err != nil {
		t.Fatalf("readPrivateKey() error = %v", err)
	}
	if !got.Equal(key) {
		t.Error("readPrivateKey() returned a different key")
	}

	t.Run("missing_file", func(t *testing.T) {
		if _, err := readPrivateKey(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
			t.Error("readPrivateKey() expected error for missing file")
		}
	})

	t.Run("not_pem", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.pem")
		if err := os.WriteFile(path, []byte("not a pem block"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := readPrivateKey(path); err == nil {
			t.Error("readPrivateKey() expected error for non-pem data")
		}
	})
}

func TestSignAppJWT(t *testing.T) {
	_, key := writeTestKey(t)

	token, err := signAppJWT("12345", key)
	if err != nil {
		t.Fatalf("signAppJWT() error = %v", err)
	}

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		t.Fatalf("unable to parse signed token: %v", err)
	}

	var cl jwt.Claims
	if err := parsed.Claims(&key.PublicKey, &cl); err != nil {
		t.Fatalf("unable to verify token signature: %v", err)
	}

	if cl.Issuer != "12345" {
		t.Errorf("issuer = %q, want %q", cl.Issuer, "12345")
	}
	if cl.Expiry.Time().After(time.Now().Add(10 * time.Minute)) {
		t.Errorf("expiry %s is over the 10 minute maximum", cl.Expiry.Time())
	}
	if !cl.IssuedAt.Time().Before(time.Now()) {
		t.Error("issued-at must be in the past to allow for clock drift")
	}
}
