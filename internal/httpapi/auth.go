package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "saleregister"

// AuthManager signs and verifies cashier bearer tokens. The token subject is
// the cashier reference recorded on every sale.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
}

type cashierClaims struct {
	jwtlib.RegisteredClaims
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// IssueToken returns a signed token for cashierRef and its expiry.
func (a *AuthManager) IssueToken(cashierRef string) (string, time.Time, error) {
	cashierRef = strings.TrimSpace(cashierRef)
	if cashierRef == "" {
		return "", time.Time{}, errors.New("cashier reference required")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	token, err := a.sign(cashierRef, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (string, error) {
	claims := &cashierClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}

func (a *AuthManager) sign(cashierRef string, issuedAt, expiresAt time.Time) (string, error) {
	claims := cashierClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   cashierRef,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

type cashierKey struct{}

func withCashier(ctx context.Context, cashierRef string) context.Context {
	return context.WithValue(ctx, cashierKey{}, cashierRef)
}

func cashierFrom(ctx context.Context) string {
	ref, _ := ctx.Value(cashierKey{}).(string)
	return ref
}
