package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

type companyRequest struct {
	Name         string  `json:"name"`
	TaxNumber    *string `json:"tax_number"`
	IndustryType *string `json:"industry_type"`
}

type companyResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	TaxNumber    *string `json:"tax_number,omitempty"`
	IndustryType *string `json:"industry_type,omitempty"`
	OwnerID      int64   `json:"owner_id"`
}

func toCompanyResponse(c *domain.Company) companyResponse {
	return companyResponse{
		ID: c.ID, Name: c.Name, TaxNumber: c.TaxNumber,
		IndustryType: c.IndustryType, OwnerID: c.OwnerID,
	}
}

func (s *Server) handleCompanyCreate(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		WriteBadRequest(w, "company name is required")
		return
	}
	u := CurrentUser(r.Context())
	company, err := s.companies.Create(r.Context(), &domain.Company{
		Name:         req.Name,
		TaxNumber:    req.TaxNumber,
		IndustryType: req.IndustryType,
		OwnerID:      u.ID,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toCompanyResponse(company))
}

func (s *Server) handleCompanyList(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	companies, err := s.companies.ForUser(r.Context(), u.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]companyResponse, 0, len(companies))
	for i := range companies {
		out = append(out, toCompanyResponse(&companies[i]))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompanyGet(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.Member(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}
	company, err := s.companies.ByID(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCompanyResponse(company))
}

func (s *Server) handleCompanyUpdate(w http.ResponseWriter, r *http.Request) {
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

	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		WriteBadRequest(w, "company name is required")
		return
	}
	company, err := s.companies.ByID(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	company.Name = req.Name
	company.TaxNumber = req.TaxNumber
	company.IndustryType = req.IndustryType
	if err := s.companies.Update(r.Context(), company); err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCompanyResponse(company))
}

type memberRequest struct {
	Role       domain.Role `json:"role"`
	FacilityID *int64      `json:"facility_id"`
}

type memberResponse struct {
	UserID     int64       `json:"user_id"`
	CompanyID  int64       `json:"company_id"`
	Role       domain.Role `json:"role"`
	FacilityID *int64      `json:"facility_id,omitempty"`
}

func (s *Server) handleMemberList(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.Member(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}
	members, err := s.companies.Members(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			UserID: m.UserID, CompanyID: m.CompanyID, Role: m.Role, FacilityID: m.FacilityID,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleMemberUpsert(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	userID, ok2 := pathID(r, "userID")
	if !ok || !ok2 {
		WriteBadRequest(w, "invalid path parameters")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.RequireManage(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	switch req.Role {
	case domain.RoleAdmin, domain.RoleDataEntry, domain.RoleViewer:
	default:
		WriteBadRequest(w, "role must be admin, data_entry or viewer")
		return
	}
	if _, err := s.users.ByID(r.Context(), userID); err != nil {
		s.storeError(w, err)
		return
	}

	m := &domain.Member{UserID: userID, CompanyID: companyID, Role: req.Role, FacilityID: req.FacilityID}
	if err := s.companies.UpsertMember(r.Context(), m); err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, memberResponse{
		UserID: m.UserID, CompanyID: m.CompanyID, Role: m.Role, FacilityID: m.FacilityID,
	})
}

func (s *Server) handleMemberRemove(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	userID, ok2 := pathID(r, "userID")
	if !ok || !ok2 {
		WriteBadRequest(w, "invalid path parameters")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.RequireManage(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.companies.RemoveMember(r.Context(), userID, companyID); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type financialsRequest struct {
	AvgElectricityCostKwh *float64 `json:"avg_electricity_cost_kwh"`
	AvgGasCostM3          *float64 `json:"avg_gas_cost_m3"`
}

func (s *Server) handleFinancialsGet(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.Member(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}
	fin, err := s.financials.Get(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, fin)
}

func (s *Server) handleFinancialsPut(w http.ResponseWriter, r *http.Request) {
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
	var req financialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if (req.AvgElectricityCostKwh != nil && *req.AvgElectricityCostKwh <= 0) ||
		(req.AvgGasCostM3 != nil && *req.AvgGasCostM3 <= 0) {
		WriteBadRequest(w, "unit costs must be positive")
		return
	}
	fin := &domain.CompanyFinancials{
		CompanyID:             companyID,
		AvgElectricityCostKwh: req.AvgElectricityCostKwh,
		AvgGasCostM3:          req.AvgGasCostM3,
	}
	if err := s.financials.Upsert(r.Context(), fin); err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, fin)
}

type targetRequest struct {
	MetricKind    string  `json:"metric_kind"`
	TargetValue   float64 `json:"target_value"`
	TargetYear    int     `json:"target_year"`
	BaselineYear  int     `json:"baseline_year"`
	BaselineValue float64 `json:"baseline_value"`
}

func (s *Server) handleTargetCreate(w http.ResponseWriter, r *http.Request) {
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
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MetricKind == "" {
		WriteBadRequest(w, "metric_kind is required")
		return
	}
	if req.TargetYear <= req.BaselineYear || req.TargetYear < time.Now().Year() {
		WriteBadRequest(w, "target_year must be after baseline_year and not in the past")
		return
	}
	target, err := s.targets.Create(r.Context(), &domain.SustainabilityTarget{
		CompanyID:     companyID,
		MetricKind:    req.MetricKind,
		TargetValue:   req.TargetValue,
		TargetYear:    req.TargetYear,
		BaselineYear:  req.BaselineYear,
		BaselineValue: req.BaselineValue,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, target)
}

func (s *Server) handleTargetList(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.Member(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}
	targets, err := s.targets.ForCompany(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, targets)
}
