package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/karbonuyum/platform/pkg/domain"
)

// FacilityStore persists facilities.
type FacilityStore struct {
	db *sql.DB
}

func NewFacilityStore(db *sql.DB) *FacilityStore {
	return &FacilityStore{db: db}
}

func (s *FacilityStore) Create(ctx context.Context, f *domain.Facility) (*domain.Facility, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO facilities (company_id, name, city, address, facility_type, surface_area_m2)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		f.CompanyID, f.Name, f.City, f.Address, f.FacilityType, f.SurfaceAreaM2,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create facility: %w", err)
	}
	return f, nil
}

func (s *FacilityStore) ByID(ctx context.Context, id int64) (*domain.Facility, error) {
	var f domain.Facility
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, name, city, address, facility_type, surface_area_m2, created_at
		 FROM facilities WHERE id = $1`, id,
	).Scan(&f.ID, &f.CompanyID, &f.Name, &f.City, &f.Address, &f.FacilityType, &f.SurfaceAreaM2, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load facility: %w", err)
	}
	return &f, nil
}

func (s *FacilityStore) ForCompany(ctx context.Context, companyID int64) ([]domain.Facility, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, name, city, address, facility_type, surface_area_m2, created_at
		 FROM facilities WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("store: list facilities: %w", err)
	}
	defer rows.Close()

	var out []domain.Facility
	for rows.Next() {
		var f domain.Facility
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.Name, &f.City, &f.Address, &f.FacilityType, &f.SurfaceAreaM2, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan facility: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *FacilityStore) Update(ctx context.Context, f *domain.Facility) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE facilities
		 SET name = $1, city = $2, address = $3, facility_type = $4, surface_area_m2 = $5
		 WHERE id = $6`,
		f.Name, f.City, f.Address, f.FacilityType, f.SurfaceAreaM2, f.ID)
	if err != nil {
		return fmt.Errorf("store: update facility: %w", err)
	}
	return requireRow(res)
}

// Delete removes an empty facility. A facility that still owns activity data
// or invoices is not deletable.
func (s *FacilityStore) Delete(ctx context.Context, id int64) error {
	return InTx(ctx, s.db, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM activity_data WHERE facility_id = $1)
			      + (SELECT COUNT(*) FROM invoices WHERE facility_id = $1)`, id).Scan(&n)
		if err != nil {
			return fmt.Errorf("store: count facility records: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("store: facility %d still holds %d records: %w", id, n, ErrConflict)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM facilities WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("store: delete facility: %w", err)
		}
		return requireRow(res)
	})
}
