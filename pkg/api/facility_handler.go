package api

import (
	"encoding/json"
	"net/http"

	"github.com/karbonuyum/platform/pkg/domain"
)

type facilityRequest struct {
	Name          string              `json:"name"`
	City          string              `json:"city"`
	Address       *string             `json:"address"`
	FacilityType  domain.FacilityType `json:"facility_type"`
	SurfaceAreaM2 *float64            `json:"surface_area_m2"`
}

func (req *facilityRequest) validate() string {
	if req.Name == "" || req.City == "" {
		return "name and city are required"
	}
	switch req.FacilityType {
	case domain.FacilityProduction, domain.FacilityWarehouse, domain.FacilityOffice,
		domain.FacilityRetail, domain.FacilityOther, "":
	default:
		return "unknown facility_type"
	}
	if req.SurfaceAreaM2 != nil && *req.SurfaceAreaM2 <= 0 {
		return "surface_area_m2 must be positive"
	}
	return ""
}

func (s *Server) handleFacilityCreate(w http.ResponseWriter, r *http.Request) {
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

	var req facilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteBadRequest(w, msg)
		return
	}
	if req.FacilityType == "" {
		req.FacilityType = domain.FacilityOther
	}

	facility, err := s.facilities.Create(r.Context(), &domain.Facility{
		CompanyID:     companyID,
		Name:          req.Name,
		City:          req.City,
		Address:       req.Address,
		FacilityType:  req.FacilityType,
		SurfaceAreaM2: req.SurfaceAreaM2,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, facility)
}

func (s *Server) handleFacilityList(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	member, err := s.authz.Member(r.Context(), u.ID, companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	facilities, err := s.facilities.ForCompany(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if member.FacilityID != nil {
		scoped := facilities[:0]
		for _, f := range facilities {
			if f.ID == *member.FacilityID {
				scoped = append(scoped, f)
			}
		}
		facilities = scoped
	}
	WriteJSON(w, http.StatusOK, facilities)
}

func (s *Server) handleFacilityGet(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid facility id")
		return
	}
	u := CurrentUser(r.Context())
	facility, _, err := s.authz.Facility(r.Context(), u.ID, facilityID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, facility)
}

func (s *Server) handleFacilityUpdate(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid facility id")
		return
	}
	u := CurrentUser(r.Context())
	facility, member, err := s.authz.Facility(r.Context(), u.ID, facilityID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if !member.Role.CanManageCompany() {
		WriteForbidden(w, "")
		return
	}

	var req facilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		WriteBadRequest(w, msg)
		return
	}
	if req.FacilityType == "" {
		req.FacilityType = facility.FacilityType
	}

	facility.Name = req.Name
	facility.City = req.City
	facility.Address = req.Address
	facility.FacilityType = req.FacilityType
	facility.SurfaceAreaM2 = req.SurfaceAreaM2
	if err := s.facilities.Update(r.Context(), facility); err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, facility)
}

func (s *Server) handleFacilityDelete(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid facility id")
		return
	}
	u := CurrentUser(r.Context())
	_, member, err := s.authz.Facility(r.Context(), u.ID, facilityID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if !member.Role.CanManageCompany() {
		WriteForbidden(w, "")
		return
	}
	if err := s.facilities.Delete(r.Context(), facilityID); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
