package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/karbonuyum/platform/pkg/domain"
)

// UserStore persists accounts.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a user. Email uniqueness is enforced by the schema; a
// duplicate surfaces as ErrConflict.
func (s *UserStore) Create(ctx context.Context, email, hashedPassword string) (*domain.User, error) {
	u := &domain.User{Email: email, HashedPassword: hashedPassword, IsActive: true}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, hashed_password) VALUES ($1, $2)
		 RETURNING id, created_at`,
		email, hashedPassword,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("store: email %q already registered: %w", email, ErrConflict)
		}
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, email, hashed_password, is_active, is_superuser, created_at
		 FROM users WHERE email = $1`, email))
}

func (s *UserStore) ByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, email, hashed_password, is_active, is_superuser, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *UserStore) scanOne(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.IsSuperuser, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load user: %w", err)
	}
	return &u, nil
}

// isUniqueViolation detects SQLSTATE 23505 (unique_violation) from lib/pq.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}
