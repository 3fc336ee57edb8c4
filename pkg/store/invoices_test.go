package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/domain"
)

func mockDB(t *testing.T) (*InvoiceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewInvoiceStore(db), mock
}

func TestInvoiceTransitionLocksRowAndMoves(t *testing.T) {
	s, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE invoices SET status = \$1 WHERE id = \$2`).
		WithArgs(domain.InvoiceProcessing, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Transition(context.Background(), 4, domain.InvoiceProcessing))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceTransitionRejectsIllegalMove(t *testing.T) {
	s, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("verified"))
	mock.ExpectRollback()

	err := s.Transition(context.Background(), 4, domain.InvoiceProcessing)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceTransitionMissingRow(t *testing.T) {
	s, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := s.Transition(context.Background(), 99, domain.InvoiceProcessing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvoiceVerifyLinksActivityRecord(t *testing.T) {
	s, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectExec(`UPDATE invoices SET status = \$1, activity_data_id = \$2 WHERE id = \$3`).
		WithArgs(domain.InvoiceVerified, int64(77), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Verify(context.Background(), 4, 77))
	assert.NoError(t, mock.ExpectationsWereMet())
}
