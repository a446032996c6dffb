// Package resources keeps a client-side copy of one owner-scoped collection.
package resources

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"webpub/internal/client/api"
)

// Backend is the REST surface of one collection.
type Backend[T any] interface {
	List(ctx context.Context, filter url.Values) ([]T, error)
	Create(ctx context.Context, in any) (T, error)
	Update(ctx context.Context, id string, in any) (T, error)
	Delete(ctx context.Context, id string) error
}

// Store mutates its local copy only after the service confirmed the change.
// Overlapping calls are not ordered: the last response wins.
type Store[T any] struct {
	mu      sync.RWMutex
	backend Backend[T]
	idOf    func(T) string
	items   []T
	loading bool
	err     string
}

func New[T any](backend Backend[T], idOf func(T) string) *Store[T] {
	return &Store[T]{backend: backend, idOf: idOf}
}

func (s *Store[T]) List(ctx context.Context, filter url.Values) ([]T, error) {
	s.start()

	items, err := s.backend.List(ctx, filter)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	s.items = items
	s.loading = false
	s.mu.Unlock()

	return s.Items(), nil
}

// Load fills the cache from fetch, replacing it or appending to it. Appended items
// already in the cache are skipped.
func (s *Store[T]) Load(ctx context.Context, fetch func(ctx context.Context) ([]T, error), appendItems bool) ([]T, error) {
	s.start()

	items, err := fetch(ctx)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	if appendItems {
		seen := make(map[string]bool, len(s.items))
		for _, it := range s.items {
			seen[s.idOf(it)] = true
		}
		for _, it := range items {
			if !seen[s.idOf(it)] {
				s.items = append(s.items, it)
			}
		}
	} else {
		s.items = items
	}
	s.loading = false
	s.mu.Unlock()

	return s.Items(), nil
}

func (s *Store[T]) Create(ctx context.Context, in any) (T, error) {
	s.start()

	item, err := s.backend.Create(ctx, in)
	if err != nil {
		return item, s.fail(err)
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.loading = false
	s.mu.Unlock()

	return item, nil
}

func (s *Store[T]) Update(ctx context.Context, id string, in any) (T, error) {
	s.start()

	item, err := s.backend.Update(ctx, id, in)
	if err != nil {
		return item, s.fail(err)
	}

	s.Replace(item)

	return item, nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	s.start()

	if err := s.backend.Delete(ctx, id); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.items[:0]
	for _, it := range s.items {
		if s.idOf(it) != id {
			out = append(out, it)
		}
	}
	s.items = out
	s.loading = false

	return nil
}

// Replace swaps the cached item with the same id, if present.
func (s *Store[T]) Replace(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.idOf(item)
	for i := range s.items {
		if s.idOf(s.items[i]) == id {
			s.items[i] = item
		}
	}
	s.loading = false
}

// Prepend puts item in front of the cached list.
func (s *Store[T]) Prepend(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append([]T{item}, s.items...)
}

// Each calls fn on every cached item under the write lock.
func (s *Store[T]) Each(fn func(*T)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		fn(&s.items[i])
	}
}

func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, len(s.items))
	copy(out, s.items)

	return out
}

func (s *Store[T]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loading
}

// Error is the message of the last failed call, cleared by the next call.
func (s *Store[T]) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.err
}

func (s *Store[T]) start() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *Store[T]) fail(err error) error {
	msg := err.Error()

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		msg = apiErr.Detail
	}

	s.mu.Lock()
	s.loading = false
	s.err = msg
	s.mu.Unlock()

	return err
}

// Remote adapts an api.Client collection path to Backend. Token is read on every
// call so a store outlives re-logins.
type Remote[T any] struct {
	Client *api.Client
	Path   string
	Token  func() string
}

func (r Remote[T]) List(ctx context.Context, filter url.Values) ([]T, error) {
	return api.List[T](ctx, r.Client, r.Token(), r.Path, filter)
}

func (r Remote[T]) Create(ctx context.Context, in any) (T, error) {
	return api.Create[T](ctx, r.Client, r.Token(), r.Path, in)
}

func (r Remote[T]) Update(ctx context.Context, id string, in any) (T, error) {
	return api.Update[T](ctx, r.Client, r.Token(), r.Path, id, in)
}

func (r Remote[T]) Delete(ctx context.Context, id string) error {
	return r.Client.Delete(ctx, r.Token(), r.Path, id)
}
