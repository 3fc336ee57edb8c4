package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/karbonuyum/platform/pkg/analytics"
	"github.com/karbonuyum/platform/pkg/benchmark"
	"github.com/karbonuyum/platform/pkg/domain"
)

type supplierRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
}

func (s *Server) handleSupplierCreate(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	req.ContactEmail = strings.ToLower(strings.TrimSpace(req.ContactEmail))
	if req.Name == "" || !strings.Contains(req.ContactEmail, "@") {
		WriteBadRequest(w, "name and a valid contact_email are required")
		return
	}
	sup, err := s.suppliers.Create(r.Context(), &domain.Supplier{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sup)
}

func (s *Server) handleSupplierGet(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid supplier id")
		return
	}
	sup, err := s.suppliers.ByID(r.Context(), supplierID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sup)
}

type invitationRequest struct {
	SupplierID int64 `json:"supplier_id"`
	TTLDays    int   `json:"ttl_days"`
}

type invitationResponse struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	SupplierID  int64  `json:"supplier_id"`
	InviteToken string `json:"invite_token,omitempty"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at"`
}

func toInvitationResponse(inv *domain.SupplierInvitation, includeToken bool) invitationResponse {
	out := invitationResponse{
		ID:         inv.ID,
		CompanyID:  inv.CompanyID,
		SupplierID: inv.SupplierID,
		Status:     string(inv.Status),
		ExpiresAt:  inv.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if includeToken {
		out.InviteToken = inv.InviteToken
	}
	return out
}

// newInviteToken draws 128 bits from crypto/rand.
func newInviteToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("api: generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Server) handleInvitationCreate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.RequireManage(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}

	var req invitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SupplierID <= 0 {
		WriteBadRequest(w, "supplier_id is required")
		return
	}
	if req.TTLDays <= 0 {
		req.TTLDays = 14
	}
	sup, err := s.suppliers.ByID(r.Context(), req.SupplierID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	token, err := newInviteToken()
	if err != nil {
		s.log.Error("invite token generation failed", "error", err)
		WriteInternalError(w)
		return
	}
	inv, err := s.suppliers.CreateInvitation(r.Context(), &domain.SupplierInvitation{
		CompanyID:   companyID,
		SupplierID:  sup.ID,
		InviteToken: token,
		ExpiresAt:   time.Now().UTC().AddDate(0, 0, req.TTLDays),
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	if s.notifier != nil {
		body := fmt.Sprintf(
			"Merhaba %s,\n\nKarbon ayak izi verilerinizi paylaşmanız için davet edildiniz. "+
				"Daveti kabul etmek için bu kodu kullanın: %s\n\nDavet %s tarihinde sona erer.",
			sup.Name, inv.InviteToken, inv.ExpiresAt.UTC().Format("2006-01-02"))
		s.notifier.Email(r.Context(), sup.ContactEmail, "Tedarikçi veri paylaşım daveti", body)
	}
	// The token appears once, in this response. Listings never echo it.
	WriteJSON(w, http.StatusCreated, toInvitationResponse(inv, true))
}

func (s *Server) handleInvitationAccept(w http.ResponseWriter, r *http.Request) {
	s.consumeInvitation(w, r, true)
}

func (s *Server) handleInvitationReject(w http.ResponseWriter, r *http.Request) {
	s.consumeInvitation(w, r, false)
}

func (s *Server) consumeInvitation(w http.ResponseWriter, r *http.Request, accept bool) {
	token := r.PathValue("token")
	if token == "" {
		WriteBadRequest(w, "invitation token is required")
		return
	}
	inv, err := s.suppliers.ConsumeInvitation(r.Context(), token, accept)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toInvitationResponse(inv, false))
}

type footprintRequest struct {
	ProductName     string  `json:"product_name"`
	ProductCategory string  `json:"product_category"`
	Unit            string  `json:"unit"`
	CO2ePerUnitKg   float64 `json:"co2e_per_unit_kg"`
}

func (s *Server) handleFootprintCreate(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid supplier id")
		return
	}
	if _, err := s.suppliers.ByID(r.Context(), supplierID); err != nil {
		s.storeError(w, err)
		return
	}

	var req footprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.ProductName == "" || req.ProductCategory == "" || req.Unit == "" {
		WriteBadRequest(w, "product_name, product_category and unit are required")
		return
	}
	if req.CO2ePerUnitKg <= 0 {
		WriteBadRequest(w, "co2e_per_unit_kg must be positive")
		return
	}

	fp, err := s.suppliers.CreateFootprint(r.Context(), &domain.ProductFootprint{
		SupplierID:      supplierID,
		ProductName:     req.ProductName,
		ProductCategory: req.ProductCategory,
		Unit:            req.Unit,
		CO2ePerUnitKg:   req.CO2ePerUnitKg,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, fp)
}

func (s *Server) handleFootprintList(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid supplier id")
		return
	}
	if _, err := s.suppliers.ByID(r.Context(), supplierID); err != nil {
		s.storeError(w, err)
		return
	}
	footprints, err := s.suppliers.FootprintsForSupplier(r.Context(), supplierID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, footprints)
}

type footprintVerifyRequest struct {
	Level           string  `json:"level"`
	VerificationDoc *string `json:"verification_doc"`
}

func (s *Server) handleFootprintVerify(w http.ResponseWriter, r *http.Request) {
	footprintID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid footprint id")
		return
	}
	u := CurrentUser(r.Context())
	if !u.IsSuperuser {
		WriteForbidden(w, "footprint verification requires a platform administrator")
		return
	}

	var req footprintVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	level := domain.VerificationLevel(req.Level)
	switch level {
	case domain.VerificationDocumentBacked, domain.VerificationAudited:
	default:
		WriteBadRequest(w, "level must be document_backed or audited")
		return
	}
	if level == domain.VerificationDocumentBacked && (req.VerificationDoc == nil || *req.VerificationDoc == "") {
		WriteBadRequest(w, "document_backed verification requires verification_doc")
		return
	}

	if err := s.suppliers.SetFootprintVerification(r.Context(), footprintID, level, &u.ID, req.VerificationDoc); err != nil {
		s.storeError(w, err)
		return
	}
	fp, err := s.suppliers.FootprintByID(r.Context(), footprintID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, fp)
}

type purchaseRequest struct {
	ProductFootprintID int64   `json:"product_footprint_id"`
	Quantity           float64 `json:"quantity"`
	PurchaseDate       string  `json:"purchase_date"`
}

func (s *Server) handlePurchaseCreate(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid facility id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.WritableFacility(r.Context(), u.ID, facilityID); err != nil {
		s.storeError(w, err)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.Quantity <= 0 {
		WriteBadRequest(w, "quantity must be positive")
		return
	}
	purchaseDate, ok := parseDateField(req.PurchaseDate)
	if !ok {
		WriteBadRequest(w, "purchase_date must be YYYY-MM-DD")
		return
	}
	fp, err := s.suppliers.FootprintByID(r.Context(), req.ProductFootprintID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	// The emission is fixed at record time; later footprint revisions do not
	// rewrite history.
	emission, err := s.suppliers.RecordPurchase(r.Context(), &domain.Scope3Emission{
		FacilityID:         facilityID,
		ProductFootprintID: fp.ID,
		Quantity:           req.Quantity,
		PurchaseDate:       purchaseDate,
		CalculatedCO2eKg:   req.Quantity * fp.CO2ePerUnitKg,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, emission)
}

func (s *Server) handleSupplierStats(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		WriteBadRequest(w, "query parameter 'category' is required")
		return
	}
	intensities, err := s.suppliers.CategoryIntensities(r.Context(), category)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if len(intensities) < benchmark.MinPeers {
		WriteError(w, http.StatusUnprocessableEntity, "Insufficient Data",
			"too few footprints in this category to publish an aggregate")
		return
	}
	WriteJSON(w, http.StatusOK, analytics.ComputeSupplierStats(category, intensities))
}
