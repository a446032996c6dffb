package authstore

import (
	"errors"
	"strings"
	"sync"
	"time"

	"webpub/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Fixed account available when the service is absent.
const (
	LocalEmail    = "test@example.com"
	LocalPassword = "password123"
	LocalUserID   = "00000000-0000-0000-0000-000000000000"
	LocalFullName = "Test User"
)

var (
	errLocalCredentials = errors.New("local: invalid credentials")
	errLocalExists      = errors.New("local: email already registered")
	errLocalToken       = errors.New("local: unknown token")
)

type localAccount struct {
	user models.User
	hash []byte
}

// emulator answers auth calls from memory once the session is in local mode.
// Accounts registered here live as long as the process.
type emulator struct {
	mu       sync.Mutex
	accounts map[string]localAccount
	tokens   map[string]string
}

func newEmulator() *emulator {
	hash, _ := bcrypt.GenerateFromPassword([]byte(LocalPassword), bcrypt.MinCost)

	return &emulator{
		accounts: map[string]localAccount{
			LocalEmail: {
				user: models.User{
					ID:        LocalUserID,
					Email:     LocalEmail,
					FullName:  LocalFullName,
					IsActive:  true,
					CreatedAt: time.Now().UTC(),
				},
				hash: hash,
			},
		},
		tokens: make(map[string]string),
	}
}

func (e *emulator) authenticate(email, password string) (models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	e.mu.Lock()
	acc, ok := e.accounts[email]
	e.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return models.User{}, "", errLocalCredentials
	}

	return acc.user, e.issue(email), nil
}

func (e *emulator) register(email, password, fullName string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return models.User{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.accounts[email]; ok {
		return models.User{}, errLocalExists
	}

	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  strings.TrimSpace(fullName),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	e.accounts[email] = localAccount{user: user, hash: hash}

	return user, nil
}

func (e *emulator) issue(email string) string {
	token := "local-" + uuid.NewString()

	e.mu.Lock()
	e.tokens[token] = email
	e.mu.Unlock()

	return token
}

func (e *emulator) userByToken(token string) (models.User, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	email, ok := e.tokens[token]
	if !ok {
		return models.User{}, false
	}

	return e.accounts[email].user, true
}

// update rewrites the profile of the account behind token. Changing the email
// moves the account and every token issued for it.
func (e *emulator) update(token string, email, fullName *string) (models.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldEmail, ok := e.tokens[token]
	if !ok {
		return models.User{}, errLocalToken
	}
	acc := e.accounts[oldEmail]

	newEmail := oldEmail
	if email != nil {
		newEmail = strings.ToLower(strings.TrimSpace(*email))
		if _, taken := e.accounts[newEmail]; taken && newEmail != oldEmail {
			return models.User{}, errLocalExists
		}
	}
	if fullName != nil {
		acc.user.FullName = strings.TrimSpace(*fullName)
	}
	acc.user.Email = newEmail

	delete(e.accounts, oldEmail)
	e.accounts[newEmail] = acc

	for t, owner := range e.tokens {
		if owner == oldEmail {
			e.tokens[t] = newEmail
		}
	}

	return acc.user, nil
}

// fixed returns the built-in profile with a fresh token.
func (e *emulator) fixed() (models.User, string) {
	e.mu.Lock()
	user := e.accounts[LocalEmail].user
	e.mu.Unlock()

	return user, e.issue(LocalEmail)
}

func (e *emulator) revoke(token string) {
	e.mu.Lock()
	delete(e.tokens, token)
	e.mu.Unlock()
}
