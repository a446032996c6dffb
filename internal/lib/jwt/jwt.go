package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeReset   = "password_reset"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongType    = errors.New("wrong token type")
)

type Claims struct {
	Type string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for userID carrying the given type marker.
func NewToken(userID, tokenType string, ttl time.Duration, secret string) (string, error) {
	now := time.Now()

	claims := Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// Parse verifies signature and expiry and returns the subject.
// The type marker must be present and equal wantType.
func Parse(tokenStr, wantType, secret string) (string, error) {
	const op = "jwt.Parse"

	var claims Claims

	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method %v", op, t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if !parsed.Valid {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.Type == "" || claims.Type != wantType {
		return "", fmt.Errorf("%s: %w", op, ErrWrongType)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%s: %w: missing sub claim", op, ErrInvalidToken)
	}

	return claims.Subject, nil
}
