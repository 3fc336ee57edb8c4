package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements run in order at startup. Every statement is idempotent so
// InitAll can be called on every boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		tax_number TEXT,
		industry_type TEXT,
		owner_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS facilities (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		city TEXT NOT NULL,
		address TEXT,
		facility_type TEXT NOT NULL DEFAULT 'other',
		surface_area_m2 DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_facilities_company ON facilities (company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_facilities_city ON facilities (city)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_industry ON companies (industry_type)`,
	`CREATE TABLE IF NOT EXISTS company_members (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		facility_id BIGINT REFERENCES facilities(id) ON DELETE SET NULL,
		PRIMARY KEY (user_id, company_id)
	)`,
	`CREATE TABLE IF NOT EXISTS activity_data (
		id BIGSERIAL PRIMARY KEY,
		facility_id BIGINT NOT NULL REFERENCES facilities(id),
		activity_type TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		unit TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		scope TEXT NOT NULL,
		calculated_co2e_kg DOUBLE PRECISION,
		is_fallback_calculation BOOLEAN NOT NULL DEFAULT FALSE,
		is_simulation BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_facility_start ON activity_data (facility_id, start_date)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_simulation ON activity_data (is_simulation)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_fallback ON activity_data (is_fallback_calculation)`,
	`CREATE TABLE IF NOT EXISTS company_financials (
		company_id BIGINT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
		avg_electricity_cost_kwh DOUBLE PRECISION,
		avg_gas_cost_m3 DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id BIGSERIAL PRIMARY KEY,
		facility_id BIGINT NOT NULL REFERENCES facilities(id),
		user_id BIGINT NOT NULL REFERENCES users(id),
		filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		extracted_activity_type TEXT,
		extracted_quantity DOUBLE PRECISION,
		extracted_cost_tl DOUBLE PRECISION,
		extracted_start_date DATE,
		extracted_end_date DATE,
		extracted_text TEXT,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		activity_data_id BIGINT REFERENCES activity_data(id),
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_facility ON invoices (facility_id)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices (status)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id),
		user_id BIGINT NOT NULL REFERENCES users(id),
		report_type TEXT NOT NULL,
		period_name TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		task_id TEXT NOT NULL DEFAULT '',
		file_path TEXT,
		file_size_bytes BIGINT,
		download_count INTEGER NOT NULL DEFAULT 0,
		total_savings_tl DOUBLE PRECISION,
		error_message TEXT,
		notify_user_when_ready BOOLEAN NOT NULL DEFAULT FALSE,
		requested_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_company ON reports (company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports (status)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		contact_email TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		admin_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS supplier_invitations (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id),
		supplier_id BIGINT NOT NULL REFERENCES suppliers(id),
		invite_token TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_supplier_invitations_token ON supplier_invitations (invite_token)`,
	`CREATE TABLE IF NOT EXISTS product_footprints (
		id BIGSERIAL PRIMARY KEY,
		supplier_id BIGINT NOT NULL REFERENCES suppliers(id),
		product_name TEXT NOT NULL,
		product_category TEXT NOT NULL,
		unit TEXT NOT NULL,
		co2e_per_unit_kg DOUBLE PRECISION NOT NULL,
		verification_level TEXT NOT NULL DEFAULT 'self_declared',
		verifier_user_id BIGINT REFERENCES users(id),
		verification_doc TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS scope3_emissions (
		id BIGSERIAL PRIMARY KEY,
		facility_id BIGINT NOT NULL REFERENCES facilities(id),
		product_footprint_id BIGINT NOT NULL REFERENCES product_footprints(id),
		quantity DOUBLE PRECISION NOT NULL,
		purchase_date DATE NOT NULL,
		calculated_co2e_kg DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		company_id BIGINT,
		facility_id BIGINT,
		action_url TEXT,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications (user_id, is_read)`,
	`CREATE TABLE IF NOT EXISTS industry_templates (
		id BIGSERIAL PRIMARY KEY,
		industry_type TEXT NOT NULL UNIQUE,
		industry_name TEXT NOT NULL,
		typical_kwh_per_employee DOUBLE PRECISION NOT NULL DEFAULT 0,
		typical_liters_per_vehicle DOUBLE PRECISION NOT NULL DEFAULT 0,
		best_in_class_electricity_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_electricity_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		electricity_cost_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS suggestion_parameters (
		key TEXT PRIMARY KEY,
		value DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sustainability_targets (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		metric_kind TEXT NOT NULL,
		target_value DOUBLE PRECISION NOT NULL,
		target_year INTEGER NOT NULL,
		baseline_year INTEGER NOT NULL,
		baseline_value DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS badges (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_badges (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		badge_id BIGINT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
		earned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, badge_id)
	)`,
	`CREATE TABLE IF NOT EXISTS leaderboard_entries (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		industry_type TEXT NOT NULL,
		region TEXT NOT NULL,
		rank INTEGER NOT NULL,
		efficiency_score DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leaderboard_industry_region ON leaderboard_entries (industry_type, region, rank)`,
	`CREATE TABLE IF NOT EXISTS event_log (
		id BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		logged_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_event ON event_log (event_id)`,
	`CREATE TABLE IF NOT EXISTS data_quality_issues (
		id BIGSERIAL PRIMARY KEY,
		facility_id BIGINT,
		code TEXT NOT NULL,
		field TEXT NOT NULL,
		message TEXT NOT NULL,
		payload TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// InitAll creates every table and index the platform uses.
func InitAll(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return nil
}
