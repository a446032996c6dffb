// Package memory keeps the user registry, reset tokens and resource collections in process
// memory. It is the default backend and is not shared between server instances.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"webpub/internal/models"
	"webpub/internal/storage"
)

type resetEntry struct {
	userID    string
	expiresAt time.Time
}

type Storage struct {
	mu      sync.RWMutex
	users   map[string]models.User
	byEmail map[string]string
	resets  map[string]resetEntry
	now     func() time.Time
}

func New() *Storage {
	return &Storage{
		users:   make(map[string]models.User),
		byEmail: make(map[string]string),
		resets:  make(map[string]resetEntry),
		now:     time.Now,
	}
}

func (s *Storage) SaveUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return storage.ErrUserExists
	}

	user.PassHash = append([]byte(nil), user.PassHash...)
	s.users[user.ID] = user
	s.byEmail[key] = user.ID

	return nil
}

func (s *Storage) User(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return s.users[id], nil
}

func (s *Storage) UserByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (s *Storage) UpdatePassword(_ context.Context, id string, passHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.PassHash = append([]byte(nil), passHash...)
	s.users[id] = u

	return nil
}

// UpdateProfile rewrites email and full name of user id. The new email must not
// belong to another user.
func (s *Storage) UpdateProfile(_ context.Context, id, email, fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	oldKey, newKey := emailKey(u.Email), emailKey(email)
	if owner, taken := s.byEmail[newKey]; taken && owner != id {
		return storage.ErrUserExists
	}

	delete(s.byEmail, oldKey)
	s.byEmail[newKey] = id

	u.Email = email
	u.FullName = fullName
	s.users[id] = u

	return nil
}

func (s *Storage) SaveResetToken(_ context.Context, tokenHash, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.resets {
		if !e.expiresAt.After(now) {
			delete(s.resets, k)
		}
	}

	s.resets[tokenHash] = resetEntry{userID: userID, expiresAt: now.Add(ttl)}

	return nil
}

// ConsumeResetToken removes the token and returns its user; a token can be consumed once.
// Success also voids every other link issued to the same user.
func (s *Storage) ConsumeResetToken(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.resets[tokenHash]
	if !ok {
		return "", storage.ErrResetTokenNotFound
	}
	delete(s.resets, tokenHash)

	if !e.expiresAt.After(s.now()) {
		return "", storage.ErrResetTokenNotFound
	}

	for k, other := range s.resets {
		if other.userID == e.userID {
			delete(s.resets, k)
		}
	}

	return e.userID, nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
