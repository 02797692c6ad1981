package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/termrelay/internal/domain"
)

// JWTVerifier validates HS256 tokens signed with a shared secret and uses
// the subject as the principal.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (domain.Principal, error) {
	if tokenString == "" {
		return domain.Principal{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid {
		return domain.Principal{}, ErrUnauthorized
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	return domain.Principal{UserID: claims.Subject}, nil
}
