package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/karbonuyum/platform/pkg/domain"
)

// CompanyStore persists companies, facilities and memberships. Company
// creation writes the owner membership in the same transaction so a company
// can never exist without exactly one owner.
type CompanyStore struct {
	db *sql.DB
}

func NewCompanyStore(db *sql.DB) *CompanyStore {
	return &CompanyStore{db: db}
}

// Create inserts a company and its owner membership atomically.
func (s *CompanyStore) Create(ctx context.Context, c *domain.Company) (*domain.Company, error) {
	err := InTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO companies (name, tax_number, industry_type, owner_id)
			 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
			c.Name, c.TaxNumber, c.IndustryType, c.OwnerID,
		).Scan(&c.ID, &c.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: create company: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO company_members (user_id, company_id, role) VALUES ($1, $2, $3)`,
			c.OwnerID, c.ID, domain.RoleOwner)
		if err != nil {
			return fmt.Errorf("store: create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CompanyStore) ByID(ctx context.Context, id int64) (*domain.Company, error) {
	var c domain.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tax_number, industry_type, owner_id, created_at
		 FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.TaxNumber, &c.IndustryType, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load company: %w", err)
	}
	return &c, nil
}

// ForUser lists every company the user is a member of.
func (s *CompanyStore) ForUser(ctx context.Context, userID int64) ([]domain.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.tax_number, c.industry_type, c.owner_id, c.created_at
		 FROM companies c
		 JOIN company_members m ON m.company_id = c.id
		 WHERE m.user_id = $1
		 ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list companies: %w", err)
	}
	defer rows.Close()

	var out []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.TaxNumber, &c.IndustryType, &c.OwnerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CompanyStore) Update(ctx context.Context, c *domain.Company) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET name = $1, tax_number = $2, industry_type = $3 WHERE id = $4`,
		c.Name, c.TaxNumber, c.IndustryType, c.ID)
	if err != nil {
		return fmt.Errorf("store: update company: %w", err)
	}
	return requireRow(res)
}

// Membership returns the caller's membership in a company, or ErrNotFound.
func (s *CompanyStore) Membership(ctx context.Context, userID, companyID int64) (*domain.Member, error) {
	var m domain.Member
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, company_id, role, facility_id
		 FROM company_members WHERE user_id = $1 AND company_id = $2`,
		userID, companyID,
	).Scan(&m.UserID, &m.CompanyID, &m.Role, &m.FacilityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load membership: %w", err)
	}
	return &m, nil
}

// Members lists every membership of a company.
func (s *CompanyStore) Members(ctx context.Context, companyID int64) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, company_id, role, facility_id
		 FROM company_members WHERE company_id = $1 ORDER BY user_id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.UserID, &m.CompanyID, &m.Role, &m.FacilityID); err != nil {
			return nil, fmt.Errorf("store: scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertMember adds or updates a non-owner membership. The owner role can
// neither be granted nor revoked here.
func (s *CompanyStore) UpsertMember(ctx context.Context, m *domain.Member) error {
	if m.Role == domain.RoleOwner {
		return fmt.Errorf("store: owner role is fixed at company creation: %w", ErrConflict)
	}
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM company_members WHERE user_id = $1 AND company_id = $2`,
		m.UserID, m.CompanyID).Scan(&current)
	if err == nil && domain.Role(current) == domain.RoleOwner {
		return fmt.Errorf("store: cannot change the owner's role: %w", ErrConflict)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: check membership: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO company_members (user_id, company_id, role, facility_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, company_id)
		 DO UPDATE SET role = EXCLUDED.role, facility_id = EXCLUDED.facility_id`,
		m.UserID, m.CompanyID, m.Role, m.FacilityID)
	if err != nil {
		return fmt.Errorf("store: upsert membership: %w", err)
	}
	return nil
}

// RemoveMember deletes a non-owner membership.
func (s *CompanyStore) RemoveMember(ctx context.Context, userID, companyID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM company_members
		 WHERE user_id = $1 AND company_id = $2 AND role <> $3`,
		userID, companyID, domain.RoleOwner)
	if err != nil {
		return fmt.Errorf("store: remove membership: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
