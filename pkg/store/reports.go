package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

// ReportStore persists asynchronous report requests.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

func (s *ReportStore) Create(ctx context.Context, r *domain.Report) (*domain.Report, error) {
	r.Status = domain.ReportPending
	now := time.Now().UTC()
	r.RequestedAt = &now
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO reports
		 (company_id, user_id, report_type, period_name, start_date, end_date,
		  status, task_id, notify_user_when_ready, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		r.CompanyID, r.UserID, r.ReportType, r.PeriodName, r.StartDate, r.EndDate,
		r.Status, r.TaskID, r.NotifyUserWhenReady, r.RequestedAt,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create report: %w", err)
	}
	return r, nil
}

const reportColumns = `id, company_id, user_id, report_type, period_name, start_date, end_date,
	status, task_id, file_path, file_size_bytes, download_count, total_savings_tl,
	error_message, notify_user_when_ready, requested_at, completed_at, expires_at, created_at`

func (s *ReportStore) ByID(ctx context.Context, id int64) (*domain.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load report: %w", err)
	}
	return r, nil
}

func (s *ReportStore) ForCompany(ctx context.Context, companyID int64, limit, offset int) ([]domain.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE company_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		companyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan report: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MarkProcessing moves pending -> processing.
func (s *ReportStore) MarkProcessing(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = $1 WHERE id = $2 AND status = $3`,
		domain.ReportProcessing, id, domain.ReportPending)
	if err != nil {
		return fmt.Errorf("store: mark report processing: %w", err)
	}
	return requireRow(res)
}

// MarkCompleted records the artifact and the expiry timestamp.
func (s *ReportStore) MarkCompleted(ctx context.Context, id int64, filePath string, sizeBytes int64, totalSavingsTL *float64, ttl time.Duration) error {
	expires := time.Now().UTC().Add(ttl)
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports
		 SET status = $1, file_path = $2, file_size_bytes = $3, total_savings_tl = $4,
		     completed_at = now(), expires_at = $5, error_message = NULL
		 WHERE id = $6`,
		domain.ReportCompleted, filePath, sizeBytes, totalSavingsTL, expires, id)
	if err != nil {
		return fmt.Errorf("store: mark report completed: %w", err)
	}
	return requireRow(res)
}

// MarkFailed records the terminal error after retries are exhausted.
func (s *ReportStore) MarkFailed(ctx context.Context, id int64, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = $1, error_message = $2, completed_at = now() WHERE id = $3`,
		domain.ReportFailed, message, id)
	if err != nil {
		return fmt.Errorf("store: mark report failed: %w", err)
	}
	return requireRow(res)
}

// IncrementDownloads bumps the download counter on a completed report.
func (s *ReportStore) IncrementDownloads(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET download_count = download_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: increment downloads: %w", err)
	}
	return requireRow(res)
}

// ExpireDue flips completed reports past their expiry to expired and returns
// the file paths whose artifacts the cleanup worker must delete.
func (s *ReportStore) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE reports SET status = $1
		 WHERE status = $2 AND expires_at IS NOT NULL AND expires_at <= $3
		 RETURNING file_path`,
		domain.ReportExpired, domain.ReportCompleted, now)
	if err != nil {
		return nil, fmt.Errorf("store: expire reports: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p sql.NullString
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan expired path: %w", err)
		}
		if p.Valid {
			paths = append(paths, p.String)
		}
	}
	return paths, rows.Err()
}

func scanReport(r rowScanner) (*domain.Report, error) {
	var rep domain.Report
	err := r.Scan(&rep.ID, &rep.CompanyID, &rep.UserID, &rep.ReportType, &rep.PeriodName,
		&rep.StartDate, &rep.EndDate, &rep.Status, &rep.TaskID, &rep.FilePath,
		&rep.FileSizeBytes, &rep.DownloadCount, &rep.TotalSavingsTL, &rep.ErrorMessage,
		&rep.NotifyUserWhenReady, &rep.RequestedAt, &rep.CompletedAt, &rep.ExpiresAt,
		&rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
