// Package notifications is the client store for notifications, including the
// live feed that pushes new items over a WebSocket.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"webpub/internal/client/api"
	"webpub/internal/client/resources"
	"webpub/internal/client/session"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

var ErrLocalMode = errors.New("live feed is unavailable in local mode")

type Options struct {
	// WSURL is the full address of the live endpoint, e.g. ws://host/notifications/ws.
	WSURL        string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	DialTimeout  time.Duration
	// OnNotification is called for every pushed item after it was added.
	OnNotification func(n *models.Notification)
	// PerPage is the page size asked from the service. Zero uses the service default.
	PerPage int
}

type Store struct {
	*resources.Store[*models.Notification]

	log    *slog.Logger
	client *api.Client
	sess   *session.Session
	token  func() string
	opts   Options

	mu      sync.Mutex
	unread  int
	page    int
	total   int
	hasMore bool
	filter  url.Values
}

func New(log *slog.Logger, client *api.Client, sess *session.Session, token func() string, opts Options) *Store {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	remote := resources.Remote[*models.Notification]{Client: client, Path: "/notifications", Token: token}

	return &Store{
		Store:  resources.New[*models.Notification](remote, func(n *models.Notification) string { return n.ID }),
		log:    log,
		client: client,
		sess:   sess,
		token:  token,
		opts:   opts,
	}
}

// List loads the first page matching filter and replaces the cached items.
func (s *Store) List(ctx context.Context, filter url.Values) ([]*models.Notification, error) {
	return s.Store.Load(ctx, s.fetch(1, filter), false)
}

// LoadMore appends the next page of the last List. With nothing left it returns the
// cached items unchanged.
func (s *Store) LoadMore(ctx context.Context) ([]*models.Notification, error) {
	s.mu.Lock()
	more, next, filter := s.hasMore, s.page+1, s.filter
	s.mu.Unlock()

	if !more {
		return s.Items(), nil
	}

	return s.Store.Load(ctx, s.fetch(next, filter), true)
}

func (s *Store) fetch(page int, filter url.Values) func(context.Context) ([]*models.Notification, error) {
	return func(ctx context.Context) ([]*models.Notification, error) {
		res, err := s.client.Notifications(ctx, s.token(), page, s.opts.PerPage, filter)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.page = res.Page
		s.total = res.Total
		s.hasMore = res.HasMore
		s.unread = res.UnreadCount
		s.filter = filter
		s.mu.Unlock()

		return res.Notifications, nil
	}
}

func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hasMore
}

// Total is the number of notifications matching the last filter on the service.
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.total
}

func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.unread
}

// Add prepends a pushed notification.
func (s *Store) Add(n *models.Notification) {
	s.Prepend(n)

	s.mu.Lock()
	s.total++
	if !n.Read {
		s.unread++
	}
	s.mu.Unlock()
}

func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	if _, err := s.client.MarkRead(ctx, s.token(), id); err != nil {
		return fmt.Errorf("notifications.MarkAsRead: %w", err)
	}

	s.Each(func(n **models.Notification) {
		if (*n).ID == id && !(*n).Read {
			read := **n
			read.Read = true
			*n = &read

			s.mu.Lock()
			s.unread--
			s.mu.Unlock()
		}
	})

	return nil
}

func (s *Store) MarkAllAsRead(ctx context.Context) error {
	if err := s.client.MarkAllRead(ctx, s.token()); err != nil {
		return fmt.Errorf("notifications.MarkAllAsRead: %w", err)
	}

	s.Each(func(n **models.Notification) {
		if !(*n).Read {
			read := **n
			read.Read = true
			*n = &read
		}
	})

	s.mu.Lock()
	s.unread = 0
	s.mu.Unlock()

	return nil
}

// Live keeps the WebSocket feed open until ctx ends, reconnecting with exponential
// backoff. The delay resets after every connection that got through the handshake.
func (s *Store) Live(ctx context.Context) error {
	const op = "notifications.Live"

	if s.sess.IsLocal() {
		return ErrLocalMode
	}

	log := s.log.With(slog.String("op", op))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialDelay
	b.MaxInterval = s.opts.MaxDelay

	for {
		connected, err := s.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		log.Info("live feed disconnected, retrying", slog.Duration("in", wait), sl.Err(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Store) listen(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.opts.DialTimeout,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token())

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	conn, _, err := dialer.DialContext(dialCtx, s.opts.WSURL, header)
	cancel()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var n models.Notification
		if err := conn.ReadJSON(&n); err != nil {
			return true, err
		}

		s.Add(&n)

		if s.opts.OnNotification != nil {
			s.opts.OnNotification(&n)
		}
	}
}
