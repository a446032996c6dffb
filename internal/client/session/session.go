// Package session carries the client-side connection state shared by all stores.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

type NetworkMode int32

const (
	Live NetworkMode = iota
	// Local means the service was found absent. It never reverts to Live.
	Local
)

func (m NetworkMode) String() string {
	if m == Local {
		return "local"
	}

	return "live"
}

// TokenKeeper persists the access token between runs.
type TokenKeeper interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type Session struct {
	mode   atomic.Int32
	Tokens TokenKeeper
}

// New returns a session in Live mode. A nil keeper keeps tokens in memory only.
func New(tokens TokenKeeper) *Session {
	if tokens == nil {
		tokens = &MemoryKeeper{}
	}

	return &Session{Tokens: tokens}
}

func (s *Session) Mode() NetworkMode {
	return NetworkMode(s.mode.Load())
}

func (s *Session) IsLocal() bool {
	return s.Mode() == Local
}

// SwitchToLocal latches the session into Local mode and reports whether this call did it.
func (s *Session) SwitchToLocal() bool {
	return s.mode.CompareAndSwap(int32(Live), int32(Local))
}

type MemoryKeeper struct {
	mu    sync.Mutex
	token string
}

func (k *MemoryKeeper) Load() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.token, nil
}

func (k *MemoryKeeper) Save(token string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.token = token

	return nil
}

func (k *MemoryKeeper) Clear() error {
	return k.Save("")
}

// FileKeeper stores the token as JSON in a 0600 file. The token is not encrypted.
type FileKeeper struct {
	Path string
}

type tokenFile struct {
	AccessToken string `json:"access_token"`
}

func (k FileKeeper) Load() (string, error) {
	const op = "session.FileKeeper.Load"

	data, err := os.ReadFile(k.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var f tokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return f.AccessToken, nil
}

func (k FileKeeper) Save(token string) error {
	const op = "session.FileKeeper.Save"

	if err := os.MkdirAll(filepath.Dir(k.Path), 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.Marshal(tokenFile{AccessToken: token})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.WriteFile(k.Path, data, 0o600); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (k FileKeeper) Clear() error {
	if err := os.Remove(k.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session.FileKeeper.Clear: %w", err)
	}

	return nil
}
