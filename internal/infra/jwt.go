// README: Bearer token verifier; HS256 JWTs carry the actor id and role.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dispatch/internal/types"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns a raw bearer token into the calling actor.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (types.Actor, error)
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (types.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return types.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return types.Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return types.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role := types.Role(claims.Role)
	if role != types.RoleDriver && role != types.RolePassenger {
		return types.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return types.Actor{ID: types.ID(claims.Subject), Role: role}, nil
}

// Issue signs a token for actor; used by the bench tool and tests.
func (v *JWTVerifier) Issue(actor types.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actor.ID),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
