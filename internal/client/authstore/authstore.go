// Package authstore keeps the client's authentication state and falls back to a
// local emulator for the rest of the process once the service is found absent.
package authstore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"webpub/internal/client/api"
	"webpub/internal/client/session"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/models"
)

var ErrNotAuthenticated = errors.New("not authenticated")

type Phase int

const (
	Anonymous Phase = iota
	Authenticating
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

type State struct {
	User            *models.User
	Token           string
	IsAuthenticated bool
	Loading         bool
	Error           string
	Phase           Phase
}

type API interface {
	Signup(ctx context.Context, email, password, fullName string) (models.User, error)
	Login(ctx context.Context, username, password string) (models.TokenPair, error)
	Me(ctx context.Context, token string) (models.User, error)
	UpdateProfile(ctx context.Context, token string, email, fullName *string) (models.User, error)
	Logout(ctx context.Context, token string) error
	Health(ctx context.Context) error
}

type Store struct {
	mu    sync.Mutex
	log   *slog.Logger
	api   API
	sess  *session.Session
	local *emulator
	state State
}

// New restores a remembered token from the session keeper, if any. The token is
// not validated until CheckAuth or FetchUserProfile runs.
func New(log *slog.Logger, client API, sess *session.Session) *Store {
	s := &Store{
		log:   log,
		api:   client,
		sess:  sess,
		local: newEmulator(),
	}

	token, err := sess.Tokens.Load()
	if err != nil {
		log.Warn("failed to load remembered token", sl.Err(err))
	}
	s.state.Token = token

	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}

	return st
}

func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Token
}

func (s *Store) Mode() session.NetworkMode {
	return s.sess.Mode()
}

func (s *Store) Login(ctx context.Context, email, password string, remember bool) error {
	const op = "authstore.Login"

	log := s.log.With(slog.String("op", op))

	s.begin()

	if s.sess.IsLocal() {
		return s.loginLocal(email, password, remember)
	}

	pair, err := s.api.Login(ctx, email, password)
	if err != nil {
		if s.absent(ctx, err) {
			s.goLocal(log)
			return s.loginLocal(email, password, remember)
		}

		log.Info("login failed", sl.Err(err))

		return s.fail(err, "Login failed")
	}

	user, err := s.api.Me(ctx, pair.AccessToken)
	if err != nil {
		log.Warn("failed to fetch profile after login", sl.Err(err))

		return s.fail(err, "Failed to load profile")
	}

	s.succeed(user, pair.AccessToken, remember)

	return nil
}

// Logout always clears local state. In live mode the service is told on a best-effort basis.
func (s *Store) Logout(ctx context.Context) {
	const op = "authstore.Logout"

	s.mu.Lock()
	token := s.state.Token
	s.state = State{Phase: Anonymous}
	s.mu.Unlock()

	if token != "" {
		if s.sess.IsLocal() {
			s.local.revoke(token)
		} else if err := s.api.Logout(ctx, token); err != nil {
			s.log.Debug("logout notification failed", slog.String("op", op), sl.Err(err))
		}
	}

	if err := s.sess.Tokens.Clear(); err != nil {
		s.log.Warn("failed to clear remembered token", slog.String("op", op), sl.Err(err))
	}
}

// FetchUserProfile refreshes the user behind the held token. A rejected token logs out.
func (s *Store) FetchUserProfile(ctx context.Context) error {
	const op = "authstore.FetchUserProfile"

	log := s.log.With(slog.String("op", op))

	token := s.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	if s.sess.IsLocal() {
		user, ok := s.local.userByToken(token)
		if !ok {
			s.Logout(ctx)
			return ErrNotAuthenticated
		}

		s.setUser(user, token)

		return nil
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		if api.StatusOf(err) == http.StatusUnauthorized {
			log.Info("token rejected, logging out")
			s.Logout(ctx)

			return err
		}

		if s.absent(ctx, err) {
			s.goLocal(log)

			user, token := s.local.fixed()
			s.setUser(user, token)

			return nil
		}

		s.mu.Lock()
		s.state.Error = message(err, "Failed to load profile")
		s.mu.Unlock()

		return err
	}

	s.setUser(user, token)

	return nil
}

// UpdateProfile changes the email and/or full name of the logged-in user. Nil
// arguments keep the current value. A failure keeps the session and sets Error.
func (s *Store) UpdateProfile(ctx context.Context, email, fullName *string) error {
	const op = "authstore.UpdateProfile"

	log := s.log.With(slog.String("op", op))

	token := s.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	if s.sess.IsLocal() {
		return s.updateLocal(token, email, fullName)
	}

	user, err := s.api.UpdateProfile(ctx, token, email, fullName)
	if err != nil {
		if api.StatusOf(err) == http.StatusUnauthorized {
			log.Info("token rejected, logging out")
			s.Logout(ctx)

			return err
		}

		if s.absent(ctx, err) {
			s.goLocal(log)

			_, token := s.local.fixed()

			return s.updateLocal(token, email, fullName)
		}

		s.mu.Lock()
		s.state.Error = message(err, "Failed to update profile")
		s.mu.Unlock()

		return err
	}

	s.setUser(user, token)

	return nil
}

func (s *Store) updateLocal(token string, email, fullName *string) error {
	user, err := s.local.update(token, email, fullName)
	if err != nil {
		msg := "Failed to update profile"
		if errors.Is(err, errLocalExists) {
			msg = "Email already registered"
		}

		s.mu.Lock()
		s.state.Error = msg
		s.mu.Unlock()

		return err
	}

	s.setUser(user, token)

	return nil
}

// CheckAuth reports whether the held token is still good. Local mode always counts as authenticated.
func (s *Store) CheckAuth(ctx context.Context) bool {
	if s.sess.IsLocal() {
		return true
	}

	if s.Token() == "" {
		return false
	}

	return s.FetchUserProfile(ctx) == nil
}

// Register signs up and then logs in with the same credentials.
func (s *Store) Register(ctx context.Context, email, password, fullName string) error {
	const op = "authstore.Register"

	log := s.log.With(slog.String("op", op))

	if s.sess.IsLocal() {
		return s.registerLocal(email, password, fullName)
	}

	if _, err := s.api.Signup(ctx, email, password, fullName); err != nil {
		if s.absent(ctx, err) {
			s.goLocal(log)
			return s.registerLocal(email, password, fullName)
		}

		log.Info("signup failed", sl.Err(err))

		return s.fail(err, "Registration failed")
	}

	return s.Login(ctx, email, password, false)
}

func (s *Store) registerLocal(email, password, fullName string) error {
	s.begin()

	if _, err := s.local.register(email, password, fullName); err != nil {
		if errors.Is(err, errLocalExists) {
			return s.fail(err, "Email already registered")
		}
		return s.fail(err, "Registration failed")
	}

	return s.loginLocal(email, password, false)
}

func (s *Store) loginLocal(email, password string, remember bool) error {
	user, token, err := s.local.authenticate(email, password)
	if err != nil {
		return s.fail(err, "Incorrect email or password")
	}

	s.succeed(user, token, remember)

	return nil
}

// absent decides whether err means the service is not there at all. A 404 is only
// trusted after the health check fails too.
func (s *Store) absent(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	if errors.Is(err, api.ErrUnreachable) {
		return true
	}

	if api.StatusOf(err) == http.StatusNotFound {
		return s.api.Health(ctx) != nil
	}

	return false
}

func (s *Store) goLocal(log *slog.Logger) {
	if s.sess.SwitchToLocal() {
		log.Warn("service is absent, switching to local mode")
	}
}

func (s *Store) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Loading = true
	s.state.Error = ""
	s.state.Phase = Authenticating
}

func (s *Store) succeed(user models.User, token string, remember bool) {
	s.setUser(user, token)

	if remember {
		if err := s.sess.Tokens.Save(token); err != nil {
			s.log.Warn("failed to remember token", sl.Err(err))
		}
	}
}

func (s *Store) setUser(user models.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{
		User:            &user,
		Token:           token,
		IsAuthenticated: true,
		Phase:           Authenticated,
	}
}

func (s *Store) fail(err error, fallback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Loading = false
	s.state.Error = message(err, fallback)
	s.state.Phase = Anonymous
	s.state.IsAuthenticated = false
	s.state.User = nil
	s.state.Token = ""

	return err
}

func message(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}

	return fallback
}
