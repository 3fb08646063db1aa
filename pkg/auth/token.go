package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nomadair/nomadair-backend/pkg/config"
)

// Claims is the subset of the identity provider's token the engine cares
// about. Session issuance and refresh live outside this service.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

type rawClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseAccessToken validates the bearer token signature/issuer and extracts
// the caller identity.
func ParseAccessToken(cfg config.JWTConfig, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &rawClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := parsed.Claims.(*rawClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}

	return &Claims{UserID: userID, Role: claims.Role}, nil
}
