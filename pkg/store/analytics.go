package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

// AnalyticsStore persists the caches the periodic workers maintain: industry
// templates, suggestion parameters, leaderboards and badges.
type AnalyticsStore struct {
	db *sql.DB
}

func NewAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

func (s *AnalyticsStore) TemplateByIndustry(ctx context.Context, industryType string) (*domain.IndustryTemplate, error) {
	var t domain.IndustryTemplate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, industry_type, industry_name, typical_kwh_per_employee,
		        typical_liters_per_vehicle, best_in_class_electricity_kwh,
		        average_electricity_kwh, electricity_cost_ratio, updated_at
		 FROM industry_templates WHERE industry_type = $1`, industryType,
	).Scan(&t.ID, &t.IndustryType, &t.IndustryName, &t.TypicalKwhPerEmployee,
		&t.TypicalLitersPerVehicle, &t.BestInClassElectricityKwh,
		&t.AverageElectricityKwh, &t.ElectricityCostRatio, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load industry template: %w", err)
	}
	return &t, nil
}

// UpsertTemplate writes a refreshed benchmark row for an industry.
func (s *AnalyticsStore) UpsertTemplate(ctx context.Context, t *domain.IndustryTemplate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO industry_templates
		 (industry_type, industry_name, typical_kwh_per_employee, typical_liters_per_vehicle,
		  best_in_class_electricity_kwh, average_electricity_kwh, electricity_cost_ratio, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (industry_type) DO UPDATE
		 SET industry_name = EXCLUDED.industry_name,
		     typical_kwh_per_employee = EXCLUDED.typical_kwh_per_employee,
		     typical_liters_per_vehicle = EXCLUDED.typical_liters_per_vehicle,
		     best_in_class_electricity_kwh = EXCLUDED.best_in_class_electricity_kwh,
		     average_electricity_kwh = EXCLUDED.average_electricity_kwh,
		     electricity_cost_ratio = EXCLUDED.electricity_cost_ratio,
		     updated_at = now()`,
		t.IndustryType, t.IndustryName, t.TypicalKwhPerEmployee, t.TypicalLitersPerVehicle,
		t.BestInClassElectricityKwh, t.AverageElectricityKwh, t.ElectricityCostRatio)
	if err != nil {
		return fmt.Errorf("store: upsert industry template: %w", err)
	}
	return nil
}

// Industries lists the distinct non-empty industry types among companies.
func (s *AnalyticsStore) Industries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT industry_type FROM companies
		 WHERE industry_type IS NOT NULL AND industry_type <> '' ORDER BY industry_type`)
	if err != nil {
		return nil, fmt.Errorf("store: list industries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan industry: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// IndustryElectricity returns each company's total electricity consumption
// in kWh over the window, for one industry. Simulations are excluded.
func (s *AnalyticsStore) IndustryElectricity(ctx context.Context, industryType string, from, to time.Time) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(SUM(a.quantity), 0) AS kwh
		 FROM companies c
		 JOIN facilities f ON f.company_id = c.id
		 JOIN activity_data a ON a.facility_id = f.id
		   AND a.activity_type = 'electricity'
		   AND a.start_date >= $2 AND a.start_date <= $3
		   AND a.is_simulation = FALSE
		 WHERE c.industry_type = $1
		 GROUP BY c.id
		 ORDER BY kwh`,
		industryType, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: industry electricity: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan industry electricity: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CompanyIDs lists every company id, optionally restricted to one industry.
func (s *AnalyticsStore) CompanyIDs(ctx context.Context, industryType string) ([]int64, error) {
	q := `SELECT id FROM companies`
	var args []any
	if industryType != "" {
		q += ` WHERE industry_type = $1`
		args = append(args, industryType)
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list company ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan company id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CompanyRegions maps each company in an industry to the city of its first
// facility, the region key the leaderboards group by.
func (s *AnalyticsStore) CompanyRegions(ctx context.Context, industryType string) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (c.id) c.id, f.city
		 FROM companies c JOIN facilities f ON f.company_id = c.id
		 WHERE c.industry_type = $1
		 ORDER BY c.id, f.id`,
		industryType)
	if err != nil {
		return nil, fmt.Errorf("store: company regions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var city string
		if err := rows.Scan(&id, &city); err != nil {
			return nil, fmt.Errorf("store: scan company region: %w", err)
		}
		out[id] = city
	}
	return out, rows.Err()
}

// Parameters returns all suggestion-engine parameter overrides as a map.
func (s *AnalyticsStore) Parameters(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM suggestion_parameters`)
	if err != nil {
		return nil, fmt.Errorf("store: load parameters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan parameter: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetParameter upserts one suggestion-engine parameter.
func (s *AnalyticsStore) SetParameter(ctx context.Context, key string, value float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suggestion_parameters (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set parameter: %w", err)
	}
	return nil
}

// ReplaceLeaderboard swaps a ranking for one industry and region atomically.
func (s *AnalyticsStore) ReplaceLeaderboard(ctx context.Context, industryType, region string, entries []domain.LeaderboardEntry) error {
	return InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM leaderboard_entries WHERE industry_type = $1 AND region = $2`,
			industryType, region); err != nil {
			return fmt.Errorf("store: clear leaderboard: %w", err)
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO leaderboard_entries (company_id, industry_type, region, rank, efficiency_score, updated_at)
				 VALUES ($1, $2, $3, $4, $5, now())`,
				e.CompanyID, industryType, region, e.Rank, e.EfficiencyScore); err != nil {
				return fmt.Errorf("store: insert leaderboard entry: %w", err)
			}
		}
		return nil
	})
}

// Leaderboard reads a ranking ordered by rank.
func (s *AnalyticsStore) Leaderboard(ctx context.Context, industryType, region string, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, industry_type, region, rank, efficiency_score, updated_at
		 FROM leaderboard_entries
		 WHERE industry_type = $1 AND region = $2 ORDER BY rank LIMIT $3`,
		industryType, region, limit)
	if err != nil {
		return nil, fmt.Errorf("store: load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.IndustryType, &e.Region, &e.Rank, &e.EfficiencyScore, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan leaderboard entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EnsureBadge inserts a badge definition if missing and returns its id.
func (s *AnalyticsStore) EnsureBadge(ctx context.Context, code, name, description string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO badges (code, name, description) VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description
		 RETURNING id`,
		code, name, description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: ensure badge: %w", err)
	}
	return id, nil
}

// AwardBadge grants a badge once; repeat awards are no-ops.
func (s *AnalyticsStore) AwardBadge(ctx context.Context, userID, badgeID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_badges (user_id, badge_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`, userID, badgeID)
	if err != nil {
		return fmt.Errorf("store: award badge: %w", err)
	}
	return nil
}

// BadgesForUser lists earned badges with their definitions.
func (s *AnalyticsStore) BadgesForUser(ctx context.Context, userID int64) ([]domain.Badge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.code, b.name, b.description
		 FROM badges b JOIN user_badges ub ON ub.badge_id = b.id
		 WHERE ub.user_id = $1 ORDER BY ub.earned_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list badges: %w", err)
	}
	defer rows.Close()

	var out []domain.Badge
	for rows.Next() {
		var b domain.Badge
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Description); err != nil {
			return nil, fmt.Errorf("store: scan badge: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
