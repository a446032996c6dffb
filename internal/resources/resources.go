// Package resources implements owner-scoped CRUD over channels, posts and
// notifications on top of any repository that stores models.Entity values.
package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"webpub/internal/lib/logger/sl"
	"webpub/internal/models"
	"webpub/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrLimitReached   = errors.New("resource limit reached")
	ErrParentNotFound = errors.New("parent resource not found")
)

type Repository[T models.Entity] interface {
	List(ctx context.Context, owner string) ([]T, error)
	Get(ctx context.Context, owner, id string) (T, error)
	// Create stores item unless its owner already holds limit items (zero means unlimited).
	// The check and the insert are atomic and fail with storage.ErrLimitReached.
	Create(ctx context.Context, item T, limit int) error
	Update(ctx context.Context, item T) error
	Delete(ctx context.Context, owner, id string) error
}

type Options[T models.Entity] struct {
	// Limit caps how many items one owner may hold. Zero means unlimited.
	Limit int
	// Check runs before every create and update.
	Check func(ctx context.Context, owner string, item T) error
	// Sort orders list results in place.
	Sort func(items []T)
	// Created is called after an item has been stored.
	Created func(item T)
}

type Service[T models.Entity] struct {
	log     *slog.Logger
	kind    string
	repo    Repository[T]
	newItem func() T
	opts    Options[T]
	now     func() time.Time
}

// New builds a service for one resource kind. newItem must return a fresh zero value.
func New[T models.Entity](
	log *slog.Logger,
	kind string,
	repo Repository[T],
	newItem func() T,
	opts Options[T],
) *Service[T] {
	return &Service[T]{
		log:     log,
		kind:    kind,
		repo:    repo,
		newItem: newItem,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service[T]) Kind() string { return s.kind }

func (s *Service[T]) NewItem() T { return s.newItem() }

func (s *Service[T]) List(ctx context.Context, owner string, filter url.Values) ([]T, error) {
	op := "resources." + s.kind + ".List"

	items, err := s.repo.List(ctx, owner)
	if err != nil {
		s.log.Error("failed to list", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := items[:0]
	for _, item := range items {
		if item.Matches(filter) {
			out = append(out, item)
		}
	}

	if s.opts.Sort != nil {
		s.opts.Sort(out)
	}

	return out, nil
}

func (s *Service[T]) Get(ctx context.Context, owner, id string) (T, error) {
	op := "resources." + s.kind + ".Get"

	item, err := s.repo.Get(ctx, owner, id)
	if err != nil {
		var zero T
		if errors.Is(err, storage.ErrNotFound) {
			return zero, ErrNotFound
		}

		s.log.Error("failed to get", slog.String("op", op), sl.Err(err))
		return zero, fmt.Errorf("%s: %w", op, err)
	}

	return item, nil
}

// Create assigns identity and timestamps to item and stores it for owner.
func (s *Service[T]) Create(ctx context.Context, owner string, item T) (T, error) {
	op := "resources." + s.kind + ".Create"

	log := s.log.With(slog.String("op", op), slog.String("owner", owner))

	var zero T

	if s.opts.Check != nil {
		if err := s.opts.Check(ctx, owner, item); err != nil {
			return zero, err
		}
	}

	now := s.now()
	item.Bind(uuid.NewString(), owner, now, now)

	if err := s.repo.Create(ctx, item, s.opts.Limit); err != nil {
		if errors.Is(err, storage.ErrLimitReached) {
			log.Info("limit reached", slog.Int("limit", s.opts.Limit))
			return zero, ErrLimitReached
		}

		log.Error("failed to create", sl.Err(err))
		return zero, fmt.Errorf("%s: %w", op, err)
	}

	if s.opts.Created != nil {
		s.opts.Created(item)
	}

	log.Info("created", slog.String("id", item.ResourceID()))

	return item, nil
}

// Update applies patch to the stored item. Fields patch leaves alone keep their values;
// identity and created_at are restored afterwards whatever patch does.
func (s *Service[T]) Update(ctx context.Context, owner, id string, patch func(T) error) (T, error) {
	op := "resources." + s.kind + ".Update"

	log := s.log.With(slog.String("op", op), slog.String("owner", owner))

	item, err := s.Get(ctx, owner, id)
	if err != nil {
		return item, err
	}

	var zero T

	created := item.Created()
	if err := patch(item); err != nil {
		return zero, err
	}
	item.Bind(id, owner, created, s.now())

	if s.opts.Check != nil {
		if err := s.opts.Check(ctx, owner, item); err != nil {
			return zero, err
		}
	}

	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return zero, ErrNotFound
		}

		log.Error("failed to update", sl.Err(err))
		return zero, fmt.Errorf("%s: %w", op, err)
	}

	return item, nil
}

func (s *Service[T]) Delete(ctx context.Context, owner, id string) error {
	op := "resources." + s.kind + ".Delete"

	if err := s.repo.Delete(ctx, owner, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}

		s.log.Error("failed to delete", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
