// Package domain holds the entities and enumerations shared by the stores,
// services and workers. Values here are plain structs loaded by explicit
// queries; nothing lazy-loads.
package domain

import "time"

// ActivityType identifies a supported activity kind.
type ActivityType string

const (
	ActivityElectricity ActivityType = "electricity"
	ActivityNaturalGas  ActivityType = "natural_gas"
	ActivityDieselFuel  ActivityType = "diesel_fuel"
)

// KnownActivityTypes lists every supported activity kind.
var KnownActivityTypes = []ActivityType{ActivityElectricity, ActivityNaturalGas, ActivityDieselFuel}

// Valid reports whether t is a known activity kind.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityElectricity, ActivityNaturalGas, ActivityDieselFuel:
		return true
	}
	return false
}

// Scope is a GHG Protocol scope tag.
type Scope string

const (
	Scope1 Scope = "scope_1"
	Scope2 Scope = "scope_2"
	Scope3 Scope = "scope_3"
)

// ScopeFor derives the GHG scope from the activity kind: purchased
// electricity is Scope 2, combusted fuels are Scope 1.
func ScopeFor(t ActivityType) Scope {
	if t == ActivityElectricity {
		return Scope2
	}
	return Scope1
}

// Role is a company membership role.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleDataEntry Role = "data_entry"
	RoleViewer    Role = "viewer"
)

// CanWriteActivity reports whether the role may create, update or delete
// activity data and invoices.
func (r Role) CanWriteActivity() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleDataEntry
}

// CanManageCompany reports whether the role may mutate company metadata,
// facilities and non-owner members.
func (r Role) CanManageCompany() bool {
	return r == RoleOwner || r == RoleAdmin
}

// FacilityType tags what a facility is used for.
type FacilityType string

const (
	FacilityProduction FacilityType = "production"
	FacilityWarehouse  FacilityType = "warehouse"
	FacilityOffice     FacilityType = "office"
	FacilityRetail     FacilityType = "retail"
	FacilityOther      FacilityType = "other"
)

// User is a platform account.
type User struct {
	ID             int64
	Email          string
	HashedPassword string
	IsActive       bool
	IsSuperuser    bool
	CreatedAt      time.Time
}

// Company is the tenant boundary. Exactly one owner.
type Company struct {
	ID           int64
	Name         string
	TaxNumber    *string
	IndustryType *string
	OwnerID      int64
	CreatedAt    time.Time
}

// Facility belongs to a company and exclusively owns its activity data and
// invoices.
type Facility struct {
	ID            int64
	CompanyID     int64
	Name          string
	City          string
	Address       *string
	FacilityType  FacilityType
	SurfaceAreaM2 *float64
	CreatedAt     time.Time
}

// Member links a user to a company with a role and an optional facility
// restriction. A nil FacilityID grants access to every facility in the
// company.
type Member struct {
	UserID     int64
	CompanyID  int64
	Role       Role
	FacilityID *int64
}

// ActivityData is one submitted consumption record. CalculatedCO2eKg stays
// nil until an ingestion worker has computed it.
type ActivityData struct {
	ID                    int64
	FacilityID            int64
	ActivityType          ActivityType
	Quantity              float64
	Unit                  string
	StartDate             time.Time
	EndDate               time.Time
	Scope                 Scope
	CalculatedCO2eKg      *float64
	IsFallbackCalculation bool
	IsSimulation          bool
	CreatedAt             time.Time
}

// CompanyFinancials holds per-company average unit costs. Singleton per
// company.
type CompanyFinancials struct {
	CompanyID             int64
	AvgElectricityCostKwh *float64
	AvgGasCostM3          *float64
	UpdatedAt             time.Time
}

// IndustryTemplate carries per-industry consumption benchmarks refreshed by
// the analytics workers.
type IndustryTemplate struct {
	ID                        int64
	IndustryType              string
	IndustryName              string
	TypicalKwhPerEmployee     float64
	TypicalLitersPerVehicle   float64
	BestInClassElectricityKwh float64
	AverageElectricityKwh     float64
	ElectricityCostRatio      float64
	UpdatedAt                 time.Time
}

// SuggestionParameter is one keyed numeric parameter for the suggestion
// engine (city factors, ROI thresholds, cost assumptions).
type SuggestionParameter struct {
	Key   string
	Value float64
}

// SustainabilityTarget is a company's declared reduction target.
type SustainabilityTarget struct {
	ID            int64
	CompanyID     int64
	MetricKind    string
	TargetValue   float64
	TargetYear    int
	BaselineYear  int
	BaselineValue float64
}

// Supplier is a third-party vendor participating in Scope 3 accounting.
type Supplier struct {
	ID            int64
	Name          string
	ContactEmail  string
	IsActive      bool
	AdminVerified bool
	CreatedAt     time.Time
}

// InvitationStatus is the lifecycle of a supplier invitation token.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// SupplierInvitation is a single-use tokened link between a company and a
// supplier. The token carries at least 128 bits of entropy.
type SupplierInvitation struct {
	ID          int64
	CompanyID   int64
	SupplierID  int64
	InviteToken string
	Status      InvitationStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// VerificationLevel grades a product footprint's evidence.
type VerificationLevel string

const (
	VerificationSelfDeclared   VerificationLevel = "self_declared"
	VerificationDocumentBacked VerificationLevel = "document_backed"
	VerificationAudited        VerificationLevel = "audited"
)

// ProductFootprint is a supplier-declared per-unit carbon intensity.
type ProductFootprint struct {
	ID                int64
	SupplierID        int64
	ProductName       string
	ProductCategory   string
	Unit              string
	CO2ePerUnitKg     float64
	VerificationLevel VerificationLevel
	VerifierUserID    *int64
	VerificationDoc   *string
	CreatedAt         time.Time
}

// Scope3Emission is a purchase record; the CO2e is computed and stored at
// record time.
type Scope3Emission struct {
	ID                 int64
	FacilityID         int64
	ProductFootprintID int64
	Quantity           float64
	PurchaseDate       time.Time
	CalculatedCO2eKg   float64
	CreatedAt          time.Time
}

// Notification is an in-app message for one user.
type Notification struct {
	ID         int64
	UserID     int64
	Kind       string
	Title      string
	Message    string
	CompanyID  *int64
	FacilityID *int64
	ActionURL  *string
	IsRead     bool
	CreatedAt  time.Time
}

// Badge and friends form the gamification cache.
type Badge struct {
	ID          int64
	Code        string
	Name        string
	Description string
}

// UserBadge records a badge earned by a user.
type UserBadge struct {
	UserID   int64
	BadgeID  int64
	EarnedAt time.Time
}

// LeaderboardEntry is one row of a precomputed industry-and-region ranking.
// Only the efficiency score is exposed; raw peer values never leave the
// analytics worker.
type LeaderboardEntry struct {
	ID              int64
	CompanyID       int64
	IndustryType    string
	Region          string
	Rank            int
	EfficiencyScore float64
	UpdatedAt       time.Time
}

// EventLogEntry is one row of the append-only processed-event audit log.
type EventLogEntry struct {
	ID        int64
	EventID   string
	EventType string
	Status    string
	LoggedAt  time.Time
}

// DataQualityIssue records a validation rejection observed by the invalid
// data consumer.
type DataQualityIssue struct {
	ID         int64
	FacilityID *int64
	Code       string
	Field      string
	Message    string
	Payload    string
	RecordedAt time.Time
}
