package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

// ActivityStore persists consumption records and serves the aggregate queries
// the dashboard, benchmark and suggestion engines run.
type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Create(ctx context.Context, a *domain.ActivityData) (*domain.ActivityData, error) {
	a.Scope = domain.ScopeFor(a.ActivityType)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO activity_data
		 (facility_id, activity_type, quantity, unit, start_date, end_date, scope,
		  calculated_co2e_kg, is_fallback_calculation, is_simulation)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		a.FacilityID, a.ActivityType, a.Quantity, a.Unit, a.StartDate, a.EndDate,
		a.Scope, a.CalculatedCO2eKg, a.IsFallbackCalculation, a.IsSimulation,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create activity data: %w", err)
	}
	return a, nil
}

const activityColumns = `id, facility_id, activity_type, quantity, unit, start_date, end_date,
	scope, calculated_co2e_kg, is_fallback_calculation, is_simulation, created_at`

func (s *ActivityStore) ByID(ctx context.Context, id int64) (*domain.ActivityData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activity_data WHERE id = $1`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load activity data: %w", err)
	}
	return a, nil
}

// ActivityFilter narrows ForFacility listings.
type ActivityFilter struct {
	ActivityType *domain.ActivityType
	From, To     *time.Time
	Limit        int
	Offset       int
}

func (s *ActivityStore) ForFacility(ctx context.Context, facilityID int64, f ActivityFilter) ([]domain.ActivityData, error) {
	q := `SELECT ` + activityColumns + ` FROM activity_data WHERE facility_id = $1`
	args := []any{facilityID}
	if f.ActivityType != nil {
		args = append(args, *f.ActivityType)
		q += fmt.Sprintf(" AND activity_type = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND start_date >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND start_date <= $%d", len(args))
	}
	q += " ORDER BY start_date DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list activity data: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityData
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan activity data: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Update rewrites the user-editable fields and clears the calculation, which
// must be redone for the new quantity.
func (s *ActivityStore) Update(ctx context.Context, a *domain.ActivityData) error {
	a.Scope = domain.ScopeFor(a.ActivityType)
	res, err := s.db.ExecContext(ctx,
		`UPDATE activity_data
		 SET activity_type = $1, quantity = $2, unit = $3, start_date = $4, end_date = $5,
		     scope = $6, calculated_co2e_kg = NULL, is_fallback_calculation = FALSE
		 WHERE id = $7`,
		a.ActivityType, a.Quantity, a.Unit, a.StartDate, a.EndDate, a.Scope, a.ID)
	if err != nil {
		return fmt.Errorf("store: update activity data: %w", err)
	}
	return requireRow(res)
}

func (s *ActivityStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity_data WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete activity data: %w", err)
	}
	return requireRow(res)
}

// SetCalculation records the computed emission for one record.
func (s *ActivityStore) SetCalculation(ctx context.Context, id int64, co2eKg float64, fallback bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE activity_data
		 SET calculated_co2e_kg = $1, is_fallback_calculation = $2 WHERE id = $3`,
		co2eKg, fallback, id)
	if err != nil {
		return fmt.Errorf("store: set calculation: %w", err)
	}
	return requireRow(res)
}

// ScopeTotal is an aggregate emission bucket for the dashboard.
type ScopeTotal struct {
	Scope   domain.Scope
	CO2eKg  float64
	Records int
}

// TotalsByScope sums calculated emissions per scope across a company's
// facilities. Simulations are excluded.
func (s *ActivityStore) TotalsByScope(ctx context.Context, companyID int64, from, to time.Time) ([]ScopeTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.scope, COALESCE(SUM(a.calculated_co2e_kg), 0), COUNT(*)
		 FROM activity_data a
		 JOIN facilities f ON f.id = a.facility_id
		 WHERE f.company_id = $1 AND a.start_date >= $2 AND a.start_date <= $3
		   AND a.is_simulation = FALSE AND a.calculated_co2e_kg IS NOT NULL
		 GROUP BY a.scope`,
		companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: totals by scope: %w", err)
	}
	defer rows.Close()

	var out []ScopeTotal
	for rows.Next() {
		var t ScopeTotal
		if err := rows.Scan(&t.Scope, &t.CO2eKg, &t.Records); err != nil {
			return nil, fmt.Errorf("store: scan scope total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MonthlyTotal is a monthly consumption bucket for one activity type.
type MonthlyTotal struct {
	Month    time.Time
	Quantity float64
	CO2eKg   float64
}

// MonthlyConsumption aggregates a facility's consumption by calendar month.
func (s *ActivityStore) MonthlyConsumption(ctx context.Context, facilityID int64, at domain.ActivityType, from, to time.Time) ([]MonthlyTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date_trunc('month', start_date) AS month,
		        COALESCE(SUM(quantity), 0), COALESCE(SUM(calculated_co2e_kg), 0)
		 FROM activity_data
		 WHERE facility_id = $1 AND activity_type = $2
		   AND start_date >= $3 AND start_date <= $4 AND is_simulation = FALSE
		 GROUP BY month ORDER BY month`,
		facilityID, at, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: monthly consumption: %w", err)
	}
	defer rows.Close()

	var out []MonthlyTotal
	for rows.Next() {
		var m MonthlyTotal
		if err := rows.Scan(&m.Month, &m.Quantity, &m.CO2eKg); err != nil {
			return nil, fmt.Errorf("store: scan monthly total: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CompanyIntensity is one peer company's emission intensity over a window,
// split by scope. City is the company's first facility city, used to narrow
// peer pools to the same location.
type CompanyIntensity struct {
	CompanyID      int64
	City           string
	CO2eKg         float64
	Scope1Kg       float64
	Scope2Kg       float64
	SurfaceAreaM2  float64
	IntensityPerM2 float64
	Scope1PerM2    float64
	Scope2PerM2    float64
}

// IntensityByCompany computes kgCO2e per square meter per company for every
// company in an industry. Only verified calculations count: fallback results
// and simulations are excluded, and facilities without a declared surface
// area contribute nothing.
func (s *ActivityStore) IntensityByCompany(ctx context.Context, industryType string, from, to time.Time) ([]CompanyIntensity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id,
		        (SELECT city FROM facilities WHERE company_id = c.id ORDER BY id LIMIT 1) AS city,
		        COALESCE(SUM(a.calculated_co2e_kg), 0) AS co2e,
		        COALESCE(SUM(a.calculated_co2e_kg) FILTER (WHERE a.scope = 'scope_1'), 0) AS scope1,
		        COALESCE(SUM(a.calculated_co2e_kg) FILTER (WHERE a.scope = 'scope_2'), 0) AS scope2,
		        (SELECT COALESCE(SUM(surface_area_m2), 0) FROM facilities
		         WHERE company_id = c.id AND surface_area_m2 > 0) AS area
		 FROM companies c
		 JOIN facilities f ON f.company_id = c.id AND f.surface_area_m2 > 0
		 JOIN activity_data a ON a.facility_id = f.id
		   AND a.start_date >= $2 AND a.start_date <= $3
		   AND a.is_simulation = FALSE AND a.is_fallback_calculation = FALSE
		   AND a.calculated_co2e_kg IS NOT NULL
		 WHERE c.industry_type = $1
		 GROUP BY c.id`,
		industryType, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: intensity by company: %w", err)
	}
	defer rows.Close()

	var out []CompanyIntensity
	for rows.Next() {
		var ci CompanyIntensity
		if err := rows.Scan(&ci.CompanyID, &ci.City, &ci.CO2eKg, &ci.Scope1Kg, &ci.Scope2Kg, &ci.SurfaceAreaM2); err != nil {
			return nil, fmt.Errorf("store: scan intensity: %w", err)
		}
		if ci.SurfaceAreaM2 > 0 {
			ci.IntensityPerM2 = ci.CO2eKg / ci.SurfaceAreaM2
			ci.Scope1PerM2 = ci.Scope1Kg / ci.SurfaceAreaM2
			ci.Scope2PerM2 = ci.Scope2Kg / ci.SurfaceAreaM2
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

// RecentDailyEmission returns total calculated emissions per day for a
// company over the trailing window, oldest first. The anomaly detector
// compares the newest day against the mean of the rest.
func (s *ActivityStore) RecentDailyEmission(ctx context.Context, companyID int64, days int) ([]MonthlyTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date_trunc('day', a.start_date) AS day,
		        COALESCE(SUM(a.quantity), 0), COALESCE(SUM(a.calculated_co2e_kg), 0)
		 FROM activity_data a
		 JOIN facilities f ON f.id = a.facility_id
		 WHERE f.company_id = $1
		   AND a.start_date >= CURRENT_DATE - $2 * INTERVAL '1 day'
		   AND a.is_simulation = FALSE AND a.calculated_co2e_kg IS NOT NULL
		 GROUP BY day ORDER BY day`,
		companyID, days)
	if err != nil {
		return nil, fmt.Errorf("store: recent daily emission: %w", err)
	}
	defer rows.Close()

	var out []MonthlyTotal
	for rows.Next() {
		var m MonthlyTotal
		if err := rows.Scan(&m.Month, &m.Quantity, &m.CO2eKg); err != nil {
			return nil, fmt.Errorf("store: scan daily emission: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ForCompanyWindow lists a company's records inside a reporting window,
// simulations excluded.
func (s *ActivityStore) ForCompanyWindow(ctx context.Context, companyID int64, from, to time.Time) ([]domain.ActivityData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumnsQualified("a")+`
		 FROM activity_data a
		 JOIN facilities f ON f.id = a.facility_id
		 WHERE f.company_id = $1 AND a.start_date >= $2 AND a.start_date <= $3
		   AND a.is_simulation = FALSE
		 ORDER BY a.start_date, a.id`,
		companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: company window: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityData
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan activity data: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func activityColumnsQualified(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.facility_id, %[1]s.activity_type, %[1]s.quantity, %[1]s.unit,
	%[1]s.start_date, %[1]s.end_date, %[1]s.scope, %[1]s.calculated_co2e_kg,
	%[1]s.is_fallback_calculation, %[1]s.is_simulation, %[1]s.created_at`, alias)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(r rowScanner) (*domain.ActivityData, error) {
	var a domain.ActivityData
	err := r.Scan(&a.ID, &a.FacilityID, &a.ActivityType, &a.Quantity, &a.Unit,
		&a.StartDate, &a.EndDate, &a.Scope, &a.CalculatedCO2eKg,
		&a.IsFallbackCalculation, &a.IsSimulation, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
