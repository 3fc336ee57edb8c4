package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

// InvoiceStore persists uploaded bills and enforces the OCR state machine at
// the persistence boundary: an illegal transition never reaches the database.
type InvoiceStore struct {
	db *sql.DB
}

func NewInvoiceStore(db *sql.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

func (s *InvoiceStore) Create(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	inv.Status = domain.InvoicePending
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO invoices (facility_id, user_id, filename, file_path, mime_type, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, uploaded_at`,
		inv.FacilityID, inv.UserID, inv.Filename, inv.FilePath, inv.MimeType, inv.Status,
	).Scan(&inv.ID, &inv.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create invoice: %w", err)
	}
	return inv, nil
}

const invoiceColumns = `id, facility_id, user_id, filename, file_path, mime_type, status,
	extracted_activity_type, extracted_quantity, extracted_cost_tl,
	extracted_start_date, extracted_end_date, extracted_text, confidence,
	activity_data_id, uploaded_at, processed_at`

func (s *InvoiceStore) ByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load invoice: %w", err)
	}
	return inv, nil
}

func (s *InvoiceStore) ForFacility(ctx context.Context, facilityID int64, limit, offset int) ([]domain.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE facility_id = $1 ORDER BY uploaded_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		facilityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list invoices: %w", err)
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan invoice: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Transition moves an invoice to the next state. The current state is checked
// inside the transaction so a concurrent worker cannot race the update.
func (s *InvoiceStore) Transition(ctx context.Context, id int64, to domain.InvoiceStatus) error {
	return InTx(ctx, s.db, func(tx *sql.Tx) error {
		var current domain.InvoiceStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: lock invoice: %w", err)
		}
		if !current.CanTransition(to) {
			return fmt.Errorf("store: invoice %d cannot move %s -> %s: %w", id, current, to, ErrConflict)
		}
		_, err = tx.ExecContext(ctx, `UPDATE invoices SET status = $1 WHERE id = $2`, to, id)
		if err != nil {
			return fmt.Errorf("store: transition invoice: %w", err)
		}
		return nil
	})
}

// OCRResult carries the extraction a worker writes alongside the
// processing -> completed transition.
type OCRResult struct {
	ActivityType *domain.ActivityType
	Quantity     *float64
	CostTL       *float64
	StartDate    *time.Time
	EndDate      *time.Time
	RawText      string
	Confidence   float64
}

// Complete stores an OCR extraction and moves processing -> completed.
func (s *InvoiceStore) Complete(ctx context.Context, id int64, r OCRResult) error {
	return s.finish(ctx, id, domain.InvoiceCompleted, &r, nil)
}

// Fail moves processing -> failed, keeping whatever raw text was read.
func (s *InvoiceStore) Fail(ctx context.Context, id int64, reason string) error {
	return s.finish(ctx, id, domain.InvoiceFailed, &OCRResult{RawText: reason}, nil)
}

// Verify confirms a completed extraction and links the activity record
// created from it.
func (s *InvoiceStore) Verify(ctx context.Context, id, activityDataID int64) error {
	return s.finish(ctx, id, domain.InvoiceVerified, nil, &activityDataID)
}

func (s *InvoiceStore) finish(ctx context.Context, id int64, to domain.InvoiceStatus, r *OCRResult, activityDataID *int64) error {
	return InTx(ctx, s.db, func(tx *sql.Tx) error {
		var current domain.InvoiceStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: lock invoice: %w", err)
		}
		if !current.CanTransition(to) {
			return fmt.Errorf("store: invoice %d cannot move %s -> %s: %w", id, current, to, ErrConflict)
		}
		if r != nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE invoices
				 SET status = $1, extracted_activity_type = $2, extracted_quantity = $3,
				     extracted_cost_tl = $4, extracted_start_date = $5, extracted_end_date = $6,
				     extracted_text = $7, confidence = $8, processed_at = now()
				 WHERE id = $9`,
				to, r.ActivityType, r.Quantity, r.CostTL, r.StartDate, r.EndDate,
				r.RawText, r.Confidence, id)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE invoices SET status = $1, activity_data_id = $2 WHERE id = $3`,
				to, activityDataID, id)
		}
		if err != nil {
			return fmt.Errorf("store: finish invoice: %w", err)
		}
		return nil
	})
}

func scanInvoice(r rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := r.Scan(&inv.ID, &inv.FacilityID, &inv.UserID, &inv.Filename, &inv.FilePath,
		&inv.MimeType, &inv.Status, &inv.ExtractedActivityType, &inv.ExtractedQuantity,
		&inv.ExtractedCostTL, &inv.ExtractedStartDate, &inv.ExtractedEndDate,
		&inv.ExtractedText, &inv.Confidence, &inv.ActivityDataID,
		&inv.UploadedAt, &inv.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
