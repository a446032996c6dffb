// Package redis keeps pending password-reset links so that every server instance
// sees the same set and each link works once.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webpub/internal/storage"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "webpub:reset"

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the keys. Defaults to "webpub:reset".
	Prefix string
}

// ResetStore keeps one key per link (hash -> user id) and one set per user
// listing the user's pending hashes.
type ResetStore struct {
	client *redis.Client
	prefix string
}

// consumeScript reads and deletes the link, then drops every sibling link of the
// same user. KEYS[1] is the link key; ARGV holds the key prefixes.
var consumeScript = redis.NewScript(`
local uid = redis.call('GETDEL', KEYS[1])
if not uid then
	return false
end
local userKey = ARGV[1] .. uid
for _, hash in ipairs(redis.call('SMEMBERS', userKey)) do
	redis.call('DEL', ARGV[2] .. hash)
end
redis.call('DEL', userKey)
return uid
`)

func New(ctx context.Context, opts Options) (*ResetStore, error) {
	const op = "storage.redis.New"

	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &ResetStore{client: client, prefix: opts.Prefix}, nil
}

func (r *ResetStore) linkKey(tokenHash string) string { return r.prefix + ":link:" + tokenHash }
func (r *ResetStore) userKey(userID string) string    { return r.prefix + ":user:" + userID }

// SaveResetToken stores the user bound to a reset token hash until ttl elapses.
func (r *ResetStore) SaveResetToken(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	const op = "storage.redis.SaveResetToken"

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.linkKey(tokenHash), userID, ttl)
		p.SAdd(ctx, r.userKey(userID), tokenHash)
		p.Expire(ctx, r.userKey(userID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ConsumeResetToken returns the user of a pending link and voids all of that
// user's pending links in one step.
func (r *ResetStore) ConsumeResetToken(ctx context.Context, tokenHash string) (string, error) {
	const op = "storage.redis.ConsumeResetToken"

	userID, err := consumeScript.Run(ctx, r.client,
		[]string{r.linkKey(tokenHash)},
		r.userKey(""), r.linkKey(""),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrResetTokenNotFound
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return userID, nil
}

func (r *ResetStore) Close() {
	_ = r.client.Close()
}
