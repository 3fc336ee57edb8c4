package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

// SupplierStore persists suppliers, invitation tokens, product footprints and
// purchase-derived Scope 3 records.
type SupplierStore struct {
	db *sql.DB
}

func NewSupplierStore(db *sql.DB) *SupplierStore {
	return &SupplierStore{db: db}
}

func (s *SupplierStore) Create(ctx context.Context, sup *domain.Supplier) (*domain.Supplier, error) {
	sup.IsActive = true
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO suppliers (name, contact_email) VALUES ($1, $2)
		 RETURNING id, created_at`,
		sup.Name, sup.ContactEmail,
	).Scan(&sup.ID, &sup.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create supplier: %w", err)
	}
	return sup, nil
}

func (s *SupplierStore) ByID(ctx context.Context, id int64) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, contact_email, is_active, admin_verified, created_at
		 FROM suppliers WHERE id = $1`, id,
	).Scan(&sup.ID, &sup.Name, &sup.ContactEmail, &sup.IsActive, &sup.AdminVerified, &sup.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load supplier: %w", err)
	}
	return &sup, nil
}

// SetVerified flips the platform-admin verification flag.
func (s *SupplierStore) SetVerified(ctx context.Context, id int64, verified bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE suppliers SET admin_verified = $1 WHERE id = $2`, verified, id)
	if err != nil {
		return fmt.Errorf("store: verify supplier: %w", err)
	}
	return requireRow(res)
}

// CreateInvitation stores a single-use invitation token.
func (s *SupplierStore) CreateInvitation(ctx context.Context, inv *domain.SupplierInvitation) (*domain.SupplierInvitation, error) {
	inv.Status = domain.InvitationPending
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO supplier_invitations (company_id, supplier_id, invite_token, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		inv.CompanyID, inv.SupplierID, inv.InviteToken, inv.Status, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create invitation: %w", err)
	}
	return inv, nil
}

// ConsumeInvitation atomically accepts or rejects a pending, unexpired
// invitation by token. Expired tokens are flipped to expired in passing and
// reported as ErrConflict; unknown tokens are ErrNotFound.
func (s *SupplierStore) ConsumeInvitation(ctx context.Context, token string, accept bool) (*domain.SupplierInvitation, error) {
	var inv domain.SupplierInvitation
	err := InTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id, company_id, supplier_id, invite_token, status, expires_at, created_at
			 FROM supplier_invitations WHERE invite_token = $1 FOR UPDATE`, token,
		).Scan(&inv.ID, &inv.CompanyID, &inv.SupplierID, &inv.InviteToken, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: lock invitation: %w", err)
		}
		if inv.Status != domain.InvitationPending {
			return fmt.Errorf("store: invitation already %s: %w", inv.Status, ErrConflict)
		}
		next := domain.InvitationAccepted
		if !accept {
			next = domain.InvitationRejected
		}
		if time.Now().UTC().After(inv.ExpiresAt) {
			next = domain.InvitationExpired
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE supplier_invitations SET status = $1 WHERE id = $2`, next, inv.ID); err != nil {
			return fmt.Errorf("store: consume invitation: %w", err)
		}
		inv.Status = next
		if next == domain.InvitationExpired {
			return fmt.Errorf("store: invitation expired: %w", ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *SupplierStore) CreateFootprint(ctx context.Context, fp *domain.ProductFootprint) (*domain.ProductFootprint, error) {
	if fp.VerificationLevel == "" {
		fp.VerificationLevel = domain.VerificationSelfDeclared
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO product_footprints
		 (supplier_id, product_name, product_category, unit, co2e_per_unit_kg,
		  verification_level, verifier_user_id, verification_doc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`,
		fp.SupplierID, fp.ProductName, fp.ProductCategory, fp.Unit, fp.CO2ePerUnitKg,
		fp.VerificationLevel, fp.VerifierUserID, fp.VerificationDoc,
	).Scan(&fp.ID, &fp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create footprint: %w", err)
	}
	return fp, nil
}

func (s *SupplierStore) FootprintByID(ctx context.Context, id int64) (*domain.ProductFootprint, error) {
	var fp domain.ProductFootprint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, supplier_id, product_name, product_category, unit, co2e_per_unit_kg,
		        verification_level, verifier_user_id, verification_doc, created_at
		 FROM product_footprints WHERE id = $1`, id,
	).Scan(&fp.ID, &fp.SupplierID, &fp.ProductName, &fp.ProductCategory, &fp.Unit,
		&fp.CO2ePerUnitKg, &fp.VerificationLevel, &fp.VerifierUserID, &fp.VerificationDoc, &fp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load footprint: %w", err)
	}
	return &fp, nil
}

func (s *SupplierStore) FootprintsForSupplier(ctx context.Context, supplierID int64) ([]domain.ProductFootprint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, supplier_id, product_name, product_category, unit, co2e_per_unit_kg,
		        verification_level, verifier_user_id, verification_doc, created_at
		 FROM product_footprints WHERE supplier_id = $1 ORDER BY id`, supplierID)
	if err != nil {
		return nil, fmt.Errorf("store: list footprints: %w", err)
	}
	defer rows.Close()

	var out []domain.ProductFootprint
	for rows.Next() {
		var fp domain.ProductFootprint
		if err := rows.Scan(&fp.ID, &fp.SupplierID, &fp.ProductName, &fp.ProductCategory, &fp.Unit,
			&fp.CO2ePerUnitKg, &fp.VerificationLevel, &fp.VerifierUserID, &fp.VerificationDoc, &fp.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan footprint: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// SetFootprintVerification upgrades a footprint's evidence level.
func (s *SupplierStore) SetFootprintVerification(ctx context.Context, id int64, level domain.VerificationLevel, verifierUserID *int64, doc *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE product_footprints
		 SET verification_level = $1, verifier_user_id = $2, verification_doc = $3
		 WHERE id = $4`,
		level, verifierUserID, doc, id)
	if err != nil {
		return fmt.Errorf("store: set footprint verification: %w", err)
	}
	return requireRow(res)
}

// RecordPurchase computes and stores a Scope 3 emission at record time.
func (s *SupplierStore) RecordPurchase(ctx context.Context, e *domain.Scope3Emission) (*domain.Scope3Emission, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO scope3_emissions (facility_id, product_footprint_id, quantity, purchase_date, calculated_co2e_kg)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		e.FacilityID, e.ProductFootprintID, e.Quantity, e.PurchaseDate, e.CalculatedCO2eKg,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: record purchase: %w", err)
	}
	return e, nil
}

// CategoryIntensities returns every footprint intensity in a product
// category. The aggregate endpoint derives mean, median and p25 from these
// without ever exposing per-supplier values.
func (s *SupplierStore) CategoryIntensities(ctx context.Context, category string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT co2e_per_unit_kg FROM product_footprints
		 WHERE product_category = $1 ORDER BY co2e_per_unit_kg`, category)
	if err != nil {
		return nil, fmt.Errorf("store: category intensities: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: scan intensity: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
