package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockUserStore(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserStore(db), mock
}

func TestUserCreate(t *testing.T) {
	s, mock := mockUserStore(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("ayse@example.com", "hashed").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	u, err := s.Create(context.Background(), "ayse@example.com", "hashed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.True(t, u.IsActive)
}

func TestUserCreateDuplicateEmailIsConflict(t *testing.T) {
	s, mock := mockUserStore(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("ayse@example.com", "hashed").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.Create(context.Background(), "ayse@example.com", "hashed")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserByIDNotFound(t *testing.T) {
	s, mock := mockUserStore(t)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "email", "hashed_password", "is_active", "is_superuser", "created_at"}))

	_, err := s.ByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
