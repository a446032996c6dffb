package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	libjwt "webpub/internal/lib/jwt"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const PurposePasswordReset = "password_reset"

var ErrInvalidToken = errors.New("invalid reset token")

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// SendResetLink publishes a reset link for email. Delivery failures are logged, not returned.
func SendResetLink(
	ctx context.Context,
	log *slog.Logger,
	pub Publisher,
	token string,
	publicURL, email string,
	expiresAt time.Time,
) {
	link := fmt.Sprintf("%s/reset-password?token=%s", publicURL, url.QueryEscape(token))

	msg := models.Message{
		Email:     email,
		Link:      link,
		Purpose:   PurposePasswordReset,
		ExpiresAt: expiresAt,
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		log.Error("failed to send reset link", sl.Err(err))
	}
}

func NewResetToken(userID string, tokenTTL time.Duration, secret string) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":     userID,
		"purpose": PurposePasswordReset,
		"type":    libjwt.TypeReset,
		"iat":     now.Unix(),
		"jti":     uuid.NewString(),
		"exp":     now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

func ParseResetToken(tokenStr, secret string) (string, error) {
	const op = "recovery.ParseResetToken"

	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if !parsedToken.Valid {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if purpose, ok := claims["purpose"].(string); !ok || purpose != PurposePasswordReset {
		return "", fmt.Errorf("%s: %w: wrong purpose", op, ErrInvalidToken)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%s: %w: missing sub claim", op, ErrInvalidToken)
	}

	return sub, nil
}

// HashToken is the key under which a reset token is stored; raw tokens never hit storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// LogPublisher stands in for the mail queue when no broker is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.Log.Info("no mail broker configured, message dropped", slog.String("purpose", msg.Purpose))

	return nil
}
