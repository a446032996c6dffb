package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	"webpub/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishing_ExpiryBecomesTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := models.Message{
		Email:     "a@b.com",
		Link:      "http://app.test/reset?token=x",
		Purpose:   "password_reset",
		ExpiresAt: now.Add(90 * time.Second),
	}

	pub, err := publishing(msg, now)
	require.NoError(t, err)

	assert.Equal(t, "90000", pub.Expiration)
	assert.Equal(t, "password_reset", pub.Type)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)

	var decoded models.Message
	require.NoError(t, json.Unmarshal(pub.Body, &decoded))
	assert.Equal(t, msg.Email, decoded.Email)
	assert.True(t, msg.ExpiresAt.Equal(decoded.ExpiresAt))
}

func TestPublishing_NoExpiry(t *testing.T) {
	pub, err := publishing(models.Message{Email: "a@b.com"}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, pub.Expiration)
}

func TestPublishing_AlreadyExpired(t *testing.T) {
	now := time.Now()

	_, err := publishing(models.Message{ExpiresAt: now.Add(-time.Second)}, now)
	assert.ErrorIs(t, err, ErrExpired)
}
