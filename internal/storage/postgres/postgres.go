package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webpub/internal/models"
	"webpub/internal/storage"
	"webpub/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

type Storage struct {
	pool *pgxpool.Pool
}

type Options struct {
	DSN string
	// MaxConns and MinConns override the pool bounds when positive.
	MaxConns int32
	MinConns int32
}

// New opens the pool and verifies the database answers. Call Migrate before use.
func New(ctx context.Context, opts Options) (*Storage, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: parse dsn: %w", op, err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = min(opts.MinConns, poolConfig.MaxConns)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: open pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Storage{pool: pool}, nil
}

// Migrate applies the embedded goose migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	const op = "storage.postgres.Migrate"

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.SaveUser"

	const query = `
		INSERT INTO users (id, email, full_name, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`

	_, err := s.pool.Exec(ctx, query,
		user.ID, user.Email, user.FullName, user.PassHash, user.IsActive, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return nil
}

func (s *Storage) User(ctx context.Context, email string) (models.User, error) {
	const query = `
		SELECT id::text, email, full_name, password_hash, is_active, created_at
		FROM users
		WHERE email = lower($1);
	`

	return s.scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *Storage) UserByID(ctx context.Context, id string) (models.User, error) {
	const query = `
		SELECT id::text, email, full_name, password_hash, is_active, created_at
		FROM users
		WHERE id::text = $1;
	`

	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *Storage) UpdatePassword(ctx context.Context, id string, passHash []byte) error {
	const query = `UPDATE users SET password_hash = $1 WHERE id::text = $2`

	tag, err := s.pool.Exec(ctx, query, passHash, id)
	if err != nil {
		return fmt.Errorf("storage.postgres.UpdatePassword: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (s *Storage) UpdateProfile(ctx context.Context, id, email, fullName string) error {
	const op = "storage.postgres.UpdateProfile"

	const query = `UPDATE users SET email = $1, full_name = $2 WHERE id::text = $3`

	tag, err := s.pool.Exec(ctx, query, email, fullName, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (s *Storage) scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.PassHash,
		&u.IsActive,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}
