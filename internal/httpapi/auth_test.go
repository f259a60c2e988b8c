package httpapi

import (
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)

	token, expiresAt, err := auth.IssueToken("  alice ")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	cashier, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cashier != "alice" {
		t.Fatalf("expected subject alice, got %q", cashier)
	}

	if _, _, err := auth.IssueToken("   "); err == nil {
		t.Fatalf("expected blank cashier to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	other := NewAuthManager(strings.Repeat("x", 32), time.Hour)
	token, _, err := other.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := NewAuthManager(testSecret, time.Hour).ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	token, err := auth.sign("alice", past, past.Add(time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsUnsignedAndForeignIssuer(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)

	unsigned := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{
		Subject:   "alice",
		Issuer:    tokenIssuer,
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := unsigned.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := auth.ParseToken(raw); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}

	foreign := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "someone-else",
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err = foreign.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}
	if _, err := auth.ParseToken(raw); err == nil {
		t.Fatalf("expected foreign issuer to be rejected")
	}

	noExpiry := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject: "alice",
		Issuer:  tokenIssuer,
	})
	raw, err = noExpiry.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign without expiry: %v", err)
	}
	if _, err := auth.ParseToken(raw); err == nil {
		t.Fatalf("expected token without expiry to be rejected")
	}
}
