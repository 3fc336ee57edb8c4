package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/observability"
	"github.com/karbonuyum/platform/pkg/store"
)

type stubDetector struct {
	text string
	err  error
}

func (d stubDetector) DetectText(ctx context.Context, image []byte) (string, error) {
	return d.text, d.err
}

type memArtifacts struct {
	blobs map[string][]byte
	gets  []string
}

func (m *memArtifacts) Put(_ context.Context, key string, data []byte) (string, error) {
	m.blobs[key] = data
	return key, nil
}

func (m *memArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	m.gets = append(m.gets, key)
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("artifacts: read %s: not found", key)
	}
	return data, nil
}

func (m *memArtifacts) Delete(_ context.Context, key string) error {
	delete(m.blobs, key)
	return nil
}

func ocrTestWorker(t *testing.T, detector TextDetector, files *memArtifacts, notify func(ctx context.Context, n *domain.Notification) error) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(store.NewInvoiceStore(db), store.NewEventLogStore(db),
		detector, PopplerRasterizer{}, files, notify, metrics, log)
	return w, mock
}

func invoiceRow(id int64, status, filePath string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "facility_id", "user_id", "filename", "file_path", "mime_type", "status",
		"extracted_activity_type", "extracted_quantity", "extracted_cost_tl",
		"extracted_start_date", "extracted_end_date", "extracted_text", "confidence",
		"activity_data_id", "uploaded_at", "processed_at",
	}).AddRow(id, int64(4), int64(9), "fatura.png", filePath, "image/png", status,
		nil, nil, nil, nil, nil, nil, 0.0, nil, time.Now(), nil)
}

func TestHandleInvoiceUploadedReturnsErrorForRetry(t *testing.T) {
	files := &memArtifacts{blobs: map[string][]byte{"uploads/4/fatura.png": []byte("png")}}
	w, mock := ocrTestWorker(t, stubDetector{err: errors.New("vision api 503")}, files, nil)

	// Already in processing: an earlier attempt errored and the runtime is
	// retrying, so there is no pending -> processing transition this time.
	mock.ExpectQuery(`FROM invoices WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(invoiceRow(7, "processing", "uploads/4/fatura.png"))

	err := w.HandleInvoiceUploaded(context.Background(),
		[]byte(`{"event_id":"e1","event_type":"invoice.uploaded","invoice_id":7}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice 7")
	assert.Equal(t, []string{"uploads/4/fatura.png"}, files.gets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleInvoiceUploadedCompletesAndNotifies(t *testing.T) {
	files := &memArtifacts{blobs: map[string][]byte{"uploads/4/fatura.png": []byte("png")}}
	var got *domain.Notification
	notify := func(ctx context.Context, n *domain.Notification) error {
		got = n
		return nil
	}
	w, mock := ocrTestWorker(t, stubDetector{text: "tutar 120,50 TL"}, files, notify)

	mock.ExpectQuery(`FROM invoices WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(invoiceRow(7, "pending", "uploads/4/fatura.png"))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE invoices SET status = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	mock.ExpectExec(`UPDATE invoices`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO event_log`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := w.HandleInvoiceUploaded(context.Background(),
		[]byte(`{"event_id":"e1","event_type":"invoice.uploaded","invoice_id":7}`))
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.UserID)
	assert.Equal(t, "invoice_processed", got.Kind)
	// Sparse text parses below the confidence threshold, so the message asks
	// for a manual check.
	assert.Contains(t, got.Message, "güven puanı düşük")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTerminalFailureFailsInvoice(t *testing.T) {
	files := &memArtifacts{blobs: map[string][]byte{}}
	w, mock := ocrTestWorker(t, stubDetector{}, files, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	mock.ExpectExec(`UPDATE invoices`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w.MarkTerminalFailure(context.Background(),
		[]byte(`{"event_id":"e1","event_type":"invoice.uploaded","invoice_id":7}`),
		errors.New("vision api 503"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
