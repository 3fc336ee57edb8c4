package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/karbonuyum/platform/pkg/domain"
)

// FinancialsStore persists the per-company unit cost singleton the ROI and
// suggestion engines read.
type FinancialsStore struct {
	db *sql.DB
}

func NewFinancialsStore(db *sql.DB) *FinancialsStore {
	return &FinancialsStore{db: db}
}

// Get returns the company's financials, or ErrNotFound if none were ever
// saved. Callers fall back to sector defaults on a miss.
func (s *FinancialsStore) Get(ctx context.Context, companyID int64) (*domain.CompanyFinancials, error) {
	var f domain.CompanyFinancials
	err := s.db.QueryRowContext(ctx,
		`SELECT company_id, avg_electricity_cost_kwh, avg_gas_cost_m3, updated_at
		 FROM company_financials WHERE company_id = $1`, companyID,
	).Scan(&f.CompanyID, &f.AvgElectricityCostKwh, &f.AvgGasCostM3, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load financials: %w", err)
	}
	return &f, nil
}

// Upsert writes the singleton row.
func (s *FinancialsStore) Upsert(ctx context.Context, f *domain.CompanyFinancials) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO company_financials (company_id, avg_electricity_cost_kwh, avg_gas_cost_m3, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (company_id) DO UPDATE
		 SET avg_electricity_cost_kwh = EXCLUDED.avg_electricity_cost_kwh,
		     avg_gas_cost_m3 = EXCLUDED.avg_gas_cost_m3,
		     updated_at = now()`,
		f.CompanyID, f.AvgElectricityCostKwh, f.AvgGasCostM3)
	if err != nil {
		return fmt.Errorf("store: upsert financials: %w", err)
	}
	return nil
}

// TargetStore persists sustainability targets.
type TargetStore struct {
	db *sql.DB
}

func NewTargetStore(db *sql.DB) *TargetStore {
	return &TargetStore{db: db}
}

func (s *TargetStore) Create(ctx context.Context, t *domain.SustainabilityTarget) (*domain.SustainabilityTarget, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sustainability_targets
		 (company_id, metric_kind, target_value, target_year, baseline_year, baseline_value)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		t.CompanyID, t.MetricKind, t.TargetValue, t.TargetYear, t.BaselineYear, t.BaselineValue,
	).Scan(&t.ID)
	if err != nil {
		return nil, fmt.Errorf("store: create target: %w", err)
	}
	return t, nil
}

func (s *TargetStore) ForCompany(ctx context.Context, companyID int64) ([]domain.SustainabilityTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, metric_kind, target_value, target_year, baseline_year, baseline_value
		 FROM sustainability_targets WHERE company_id = $1 ORDER BY target_year`, companyID)
	if err != nil {
		return nil, fmt.Errorf("store: list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.SustainabilityTarget
	for rows.Next() {
		var t domain.SustainabilityTarget
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.MetricKind, &t.TargetValue, &t.TargetYear, &t.BaselineYear, &t.BaselineValue); err != nil {
			return nil, fmt.Errorf("store: scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
