// README: Bearer-token verification; HS256 JWT implementation behind TokenVerifier.
package infra

import (
	"context"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated identity carried by a verified token.
type Principal struct {
	ID   string
	Role string // "customer", "partner", or "admin"
}

// TokenVerifier turns a raw bearer token into a Principal.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Principal, error)
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) TokenVerifier {
	return &jwtVerifier{secret: []byte(secret)}
}

func (v *jwtVerifier) Verify(_ context.Context, raw string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return &Principal{ID: claims.Subject, Role: claims.Role}, nil
}

// SignToken issues an HS256 token for a principal. Used by tooling and tests;
// production tokens come from the identity provider sharing the same secret.
func SignToken(secret, subject, role string, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
