package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockAnalyticsStore(t *testing.T) (*AnalyticsStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAnalyticsStore(db), mock
}

func TestEnsureBadgeUpserts(t *testing.T) {
	s, mock := mockAnalyticsStore(t)
	mock.ExpectQuery(`INSERT INTO badges`).
		WithArgs("sektor_lideri", "Sektör Lideri", "Bölgesinde birinci").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.EnsureBadge(context.Background(), "sektor_lideri", "Sektör Lideri", "Bölgesinde birinci")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardBadgeIsIdempotent(t *testing.T) {
	s, mock := mockAnalyticsStore(t)
	mock.ExpectExec(`INSERT INTO user_badges`).
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.AwardBadge(context.Background(), 3, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBadgesForUser(t *testing.T) {
	s, mock := mockAnalyticsStore(t)
	mock.ExpectQuery(`FROM badges b JOIN user_badges ub`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "description"}).
			AddRow(int64(7), "sektor_lideri", "Sektör Lideri", "Bölgesinde birinci"))

	badges, err := s.BadgesForUser(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, "sektor_lideri", badges[0].Code)
}
