package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"webpub/internal/lib/jwt"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/lib/recovery"
	"webpub/internal/models"
	"webpub/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const TokenTypeBearer = "bearer"

const resetWorkTimeout = 10 * time.Second

const ForgotPasswordMessage = "If your email is registered, you will receive a password reset link"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

type UserRepository interface {
	SaveUser(ctx context.Context, user models.User) error
	User(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
	UpdatePassword(ctx context.Context, id string, passHash []byte) error
	UpdateProfile(ctx context.Context, id, email, fullName string) error
}

// ProfileUpdate lists the profile fields to change. Nil fields keep their values.
type ProfileUpdate struct {
	Email    *string
	FullName *string
}

type ResetStore interface {
	SaveResetToken(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, tokenHash string) (string, error)
}

type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	PublicURL  string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Events     EventRecorder
}

type Auth struct {
	log       *slog.Logger
	users     UserRepository
	resets    ResetStore
	mail      recovery.Publisher
	opts      Options
	dummyHash []byte
	pending   sync.WaitGroup
}

type noEvents struct{}

func (noEvents) AuthEvent(string, string) {}

func New(
	log *slog.Logger,
	users UserRepository,
	resets ResetStore,
	mail recovery.Publisher,
	opts Options,
) (*Auth, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth.New: signing secret is empty")
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Events == nil {
		opts.Events = noEvents{}
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("webpub-dummy-password"), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth.New: %w", err)
	}

	return &Auth{
		log:       log,
		users:     users,
		resets:    resets,
		mail:      mail,
		opts:      opts,
		dummyHash: dummy,
	}, nil
}

func (a *Auth) Signup(
	ctx context.Context,
	email string,
	pass string,
	fullName string,
) (models.User, error) {
	const op = "auth.Signup"

	log := a.log.With(
		slog.String("op", op),
	)

	log.Info("registering new user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), a.opts.BcryptCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(email),
		FullName:  strings.TrimSpace(fullName),
		PassHash:  passHash,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	if err := a.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			a.opts.Events.AuthEvent("signup", "duplicate")

			return models.User{}, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	a.opts.Events.AuthEvent("signup", "ok")
	log.Info("user registered", slog.String("uid", user.ID))

	return user, nil
}

// Login checks credentials and issues an access/refresh pair.
// Unknown users and wrong passwords are indistinguishable, including in timing.
func (a *Auth) Login(
	ctx context.Context,
	username, password string,
) (models.TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.User(ctx, normalizeEmail(username))
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			log.Error("failed to get user", sl.Err(err))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
		}

		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		log.Info("invalid credentials")
		a.opts.Events.AuthEvent("login", "invalid_credentials")

		return models.TokenPair{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil || !user.IsActive {
		log.Info("invalid credentials")
		a.opts.Events.AuthEvent("login", "invalid_credentials")

		return models.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := a.issuePair(user.ID)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	a.opts.Events.AuthEvent("login", "ok")
	log.Info("user logged in successfully", slog.String("uid", user.ID))

	return pair, nil
}

// CurrentUser resolves the user behind an access token.
func (a *Auth) CurrentUser(ctx context.Context, accessToken string) (models.User, error) {
	const op = "auth.CurrentUser"

	log := a.log.With(slog.String("op", op))

	uid, err := jwt.Parse(accessToken, jwt.TypeAccess, a.opts.Secret)
	if err != nil {
		log.Info("token rejected", sl.Err(err))
		return models.User{}, ErrInvalidToken
	}

	user, err := a.users.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("token subject not found", slog.String("uid", uid))
			return models.User{}, ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateProfile changes the email and/or full name of the user behind accessToken.
func (a *Auth) UpdateProfile(ctx context.Context, accessToken string, upd ProfileUpdate) (models.User, error) {
	const op = "auth.UpdateProfile"

	log := a.log.With(slog.String("op", op))

	user, err := a.CurrentUser(ctx, accessToken)
	if err != nil {
		return models.User{}, err
	}

	if upd.Email != nil {
		user.Email = normalizeEmail(*upd.Email)
	}
	if upd.FullName != nil {
		user.FullName = strings.TrimSpace(*upd.FullName)
	}

	if err := a.users.UpdateProfile(ctx, user.ID, user.Email, user.FullName); err != nil {
		switch {
		case errors.Is(err, storage.ErrUserExists):
			log.Info("email already taken", slog.String("uid", user.ID))
			return models.User{}, fmt.Errorf("%s: %w", op, ErrUserExists)
		case errors.Is(err, storage.ErrUserNotFound):
			return models.User{}, ErrUserNotFound
		}

		log.Error("failed to update profile", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("profile updated", slog.String("uid", user.ID))

	return user, nil
}

// VerifyAccess checks an access token without touching storage and returns its subject.
func (a *Auth) VerifyAccess(accessToken string) (string, error) {
	uid, err := jwt.Parse(accessToken, jwt.TypeAccess, a.opts.Secret)
	if err != nil {
		return "", ErrInvalidToken
	}

	return uid, nil
}

// Refresh trades a refresh token for a new access token.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	uid, err := jwt.Parse(refreshToken, jwt.TypeRefresh, a.opts.Secret)
	if err != nil {
		log.Info("refresh token rejected", sl.Err(err))
		a.opts.Events.AuthEvent("refresh", "invalid_token")

		return models.TokenPair{}, ErrInvalidToken
	}

	if _, err := a.users.UserByID(ctx, uid); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.TokenPair{}, ErrInvalidToken
		}

		log.Error("failed to load user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	access, err := jwt.NewToken(uid, jwt.TypeAccess, a.opts.AccessTTL, a.opts.Secret)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	a.opts.Events.AuthEvent("refresh", "ok")

	return models.TokenPair{AccessToken: access, TokenType: TokenTypeBearer}, nil
}

// ForgotPassword schedules a reset link for email and returns at once.
// Lookup and delivery run in the background so registered and unknown addresses
// cost the caller the same time; Wait drains the pending work.
func (a *Auth) ForgotPassword(ctx context.Context, email string) {
	a.opts.Events.AuthEvent("forgot_password", "requested")

	ctx = context.WithoutCancel(ctx)

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()

		ctx, cancel := context.WithTimeout(ctx, resetWorkTimeout)
		defer cancel()

		a.issueResetLink(ctx, email)
	}()
}

// Wait blocks until every scheduled reset link has been handled.
func (a *Auth) Wait() {
	a.pending.Wait()
}

func (a *Auth) issueResetLink(ctx context.Context, email string) {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.User(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			log.Error("failed to get user", sl.Err(err))
		}
		return
	}

	expiresAt := time.Now().Add(a.opts.ResetTTL)

	token, err := recovery.NewResetToken(user.ID, a.opts.ResetTTL, a.opts.Secret)
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return
	}

	if err := a.resets.SaveResetToken(ctx, recovery.HashToken(token), user.ID, a.opts.ResetTTL); err != nil {
		log.Error("failed to store reset token", sl.Err(err))
		return
	}

	recovery.SendResetLink(ctx, log, a.mail, token, a.opts.PublicURL, user.Email, expiresAt)

	log.Info("reset link issued", slog.String("uid", user.ID))
}

// ResetPassword replaces the password of the user a reset token was issued to.
// Each token works once.
func (a *Auth) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	uid, err := recovery.ParseResetToken(token, a.opts.Secret)
	if err != nil {
		log.Info("reset token rejected", sl.Err(err))
		a.opts.Events.AuthEvent("reset_password", "invalid_token")

		return ErrInvalidResetToken
	}

	stored, err := a.resets.ConsumeResetToken(ctx, recovery.HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrResetTokenNotFound) {
			a.opts.Events.AuthEvent("reset_password", "invalid_token")
			return ErrInvalidResetToken
		}

		log.Error("failed to consume reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if stored != uid {
		return ErrInvalidResetToken
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), a.opts.BcryptCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.UpdatePassword(ctx, uid, passHash); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrInvalidResetToken
		}

		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.opts.Events.AuthEvent("reset_password", "ok")
	log.Info("password reset", slog.String("uid", uid))

	return nil
}

func (a *Auth) issuePair(uid string) (models.TokenPair, error) {
	access, err := jwt.NewToken(uid, jwt.TypeAccess, a.opts.AccessTTL, a.opts.Secret)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := jwt.NewToken(uid, jwt.TypeRefresh, a.opts.RefreshTTL, a.opts.Secret)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
