package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/infigrid-core/internal/ledger"
)

// Issuer is the iss claim on every InfiGrid token.
const Issuer = "infigrid"

// defaultTTL applies when no token lifetime is configured.
const defaultTTL = 24 * time.Hour

// Claims identifies the principal a request acts for. The subject is the
// ledger principal; there are no roles, since every authorization decision
// is made by the ledger.
type Claims struct {
	jwt.RegisteredClaims
}

// Principal returns the ledger identity carried by the token.
func (c *Claims) Principal() ledger.Principal {
	return ledger.Principal(c.Subject)
}

// GenerateToken creates a signed HS256 token for principal.
func GenerateToken(principal ledger.Principal, secret string, ttl time.Duration) (string, error) {
	if err := ledger.ValidatePrincipal(principal); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPrincipal, err)
	}
	if secret == "" {
		return "", ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   string(principal),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature, expiry and issuer and returns its
// claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if err := ledger.ValidatePrincipal(claims.Principal()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}
