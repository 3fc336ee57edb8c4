// Package authz resolves what a user may do inside a company. Tenancy is
// checked before roles: a user outside the company gets a not-found, never a
// forbidden, so resource existence does not leak across tenants.
package authz

import (
	"context"
	"errors"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/store"
)

// ErrForbidden means the user is in the tenant but the role or facility
// restriction blocks the action.
var ErrForbidden = errors.New("authz: forbidden")

// Authorizer answers access questions against the membership tables.
type Authorizer struct {
	companies  *store.CompanyStore
	facilities *store.FacilityStore
}

func NewAuthorizer(companies *store.CompanyStore, facilities *store.FacilityStore) *Authorizer {
	return &Authorizer{companies: companies, facilities: facilities}
}

// Member returns the user's membership in the company. A missing membership
// surfaces as store.ErrNotFound.
func (a *Authorizer) Member(ctx context.Context, userID, companyID int64) (*domain.Member, error) {
	return a.companies.Membership(ctx, userID, companyID)
}

// RequireManage checks that the user may mutate company metadata, members
// and facilities.
func (a *Authorizer) RequireManage(ctx context.Context, userID, companyID int64) (*domain.Member, error) {
	m, err := a.Member(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	if !m.Role.CanManageCompany() {
		return nil, ErrForbidden
	}
	return m, nil
}

// Facility resolves a facility the user may read. The company membership and
// an optional per-facility restriction both apply.
func (a *Authorizer) Facility(ctx context.Context, userID, facilityID int64) (*domain.Facility, *domain.Member, error) {
	f, err := a.facilities.ByID(ctx, facilityID)
	if err != nil {
		return nil, nil, err
	}
	m, err := a.Member(ctx, userID, f.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	if m.FacilityID != nil && *m.FacilityID != f.ID {
		// Scoped members see only their own facility; everything else in the
		// company is invisible to them.
		return nil, nil, store.ErrNotFound
	}
	return f, m, nil
}

// WritableFacility resolves a facility the user may write activity data and
// invoices to.
func (a *Authorizer) WritableFacility(ctx context.Context, userID, facilityID int64) (*domain.Facility, error) {
	f, m, err := a.Facility(ctx, userID, facilityID)
	if err != nil {
		return nil, err
	}
	if !m.Role.CanWriteActivity() {
		return nil, ErrForbidden
	}
	return f, nil
}
