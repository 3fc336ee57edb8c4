package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/karbonuyum/platform/pkg/calc"
	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/ingest"
	"github.com/karbonuyum/platform/pkg/store"
	"github.com/karbonuyum/platform/pkg/validation"
)

type activityRequest struct {
	FacilityID   int64   `json:"facility_id"`
	ActivityType string  `json:"activity_type"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	IsSimulation bool    `json:"is_simulation"`
}

type activityResponse struct {
	ID                    int64    `json:"id"`
	FacilityID            int64    `json:"facility_id"`
	ActivityType          string   `json:"activity_type"`
	Quantity              float64  `json:"quantity"`
	Unit                  string   `json:"unit"`
	StartDate             string   `json:"start_date"`
	EndDate               string   `json:"end_date"`
	Scope                 string   `json:"scope"`
	CalculatedCO2eKg      *float64 `json:"calculated_co2e_kg"`
	IsFallbackCalculation bool     `json:"is_fallback_calculation"`
	IsSimulation          bool     `json:"is_simulation"`
}

func toActivityResponse(a *domain.ActivityData) activityResponse {
	return activityResponse{
		ID:                    a.ID,
		FacilityID:            a.FacilityID,
		ActivityType:          string(a.ActivityType),
		Quantity:              a.Quantity,
		Unit:                  a.Unit,
		StartDate:             a.StartDate.Format("2006-01-02"),
		EndDate:               a.EndDate.Format("2006-01-02"),
		Scope:                 string(a.Scope),
		CalculatedCO2eKg:      a.CalculatedCO2eKg,
		IsFallbackCalculation: a.IsFallbackCalculation,
		IsSimulation:          a.IsSimulation,
	}
}

func parseDateField(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}

// decodeActivityBody validates the raw body against the activity schema
// before binding it: unknown keys and missing fields come back as 422 issues
// rather than being silently dropped by the decoder.
func decodeActivityBody(w http.ResponseWriter, r *http.Request, check func(any) []validation.Issue) (activityRequest, bool) {
	var req activityRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteBadRequest(w, "could not read request body")
		return req, false
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return req, false
	}
	if issues := check(doc); len(issues) > 0 {
		WriteValidationError(w, issues)
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return req, false
	}
	return req, true
}

func (s *Server) handleActivityCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeActivityBody(w, r, validation.CheckShape)
	if !ok {
		return
	}
	start, ok := parseDateField(req.StartDate)
	end, ok2 := parseDateField(req.EndDate)
	if !ok || !ok2 {
		WriteBadRequest(w, "start_date and end_date must be YYYY-MM-DD")
		return
	}

	u := CurrentUser(r.Context())
	if _, err := s.authz.WritableFacility(r.Context(), u.ID, req.FacilityID); err != nil {
		s.storeError(w, err)
		return
	}

	rec, issues, err := s.ingest.Submit(r.Context(), ingest.Submission{
		FacilityID:   req.FacilityID,
		ActivityType: domain.ActivityType(req.ActivityType),
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		StartDate:    start,
		EndDate:      end,
		IsSimulation: req.IsSimulation,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	if len(issues) > 0 {
		WriteValidationError(w, issues)
		return
	}
	WriteJSON(w, http.StatusCreated, toActivityResponse(rec))
}

func (s *Server) handleActivityList(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid facility id")
		return
	}
	u := CurrentUser(r.Context())
	if _, _, err := s.authz.Facility(r.Context(), u.ID, facilityID); err != nil {
		s.storeError(w, err)
		return
	}

	filter := store.ActivityFilter{Limit: 100}
	q := r.URL.Query()
	if v := q.Get("activity_type"); v != "" {
		at := domain.ActivityType(v)
		if !at.Valid() {
			WriteBadRequest(w, "unknown activity_type")
			return
		}
		filter.ActivityType = &at
	}
	if v := q.Get("from"); v != "" {
		if t, ok := parseDateField(v); ok {
			filter.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, ok := parseDateField(v); ok {
			filter.To = &t
		}
	}

	records, err := s.activities.ForFacility(r.Context(), facilityID, filter)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]activityResponse, 0, len(records))
	for i := range records {
		out = append(out, toActivityResponse(&records[i]))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleActivityUpdate(w http.ResponseWriter, r *http.Request) {
	activityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid activity id")
		return
	}
	rec, err := s.activities.ByID(r.Context(), activityID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.WritableFacility(r.Context(), u.ID, rec.FacilityID); err != nil {
		s.storeError(w, err)
		return
	}

	req, ok := decodeActivityBody(w, r, validation.CheckUpdateShape)
	if !ok {
		return
	}
	start, ok := parseDateField(req.StartDate)
	end, ok2 := parseDateField(req.EndDate)
	if !ok || !ok2 {
		WriteBadRequest(w, "start_date and end_date must be YYYY-MM-DD")
		return
	}
	at := domain.ActivityType(req.ActivityType)
	if issues := validation.CheckRecord(at, req.Quantity, req.Unit, start, end); len(issues) > 0 {
		WriteValidationError(w, issues)
		return
	}

	rec.ActivityType = at
	rec.Quantity, rec.Unit = validation.Normalize(at, req.Quantity, req.Unit)
	rec.StartDate = start
	rec.EndDate = end
	if err := s.activities.Update(r.Context(), rec); err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toActivityResponse(rec))
}

func (s *Server) handleActivityDelete(w http.ResponseWriter, r *http.Request) {
	activityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid activity id")
		return
	}
	rec, err := s.activities.ByID(r.Context(), activityID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.WritableFacility(r.Context(), u.ID, rec.FacilityID); err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.activities.Delete(r.Context(), activityID); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCSVImport(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxCSVBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxCSVBytes); err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "csv file exceeds the size limit")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		WriteBadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	result, err := s.ingest.ImportCSV(r.Context(), facilityID, file)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleCSVTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="aktivite-verisi-sablonu.csv"`)
	_, _ = w.Write(ingest.CSVTemplate())
}

type estimateRequest struct {
	ActivityType string  `json:"activity_type"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

type estimateResponse struct {
	CO2eKg   float64 `json:"co2e_kg"`
	Source   string  `json:"source"`
	Fallback bool    `json:"is_fallback"`
}

// handleEstimate is the synchronous provider path: upstream failures map to
// 502 and 503 instead of silently falling back.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEstimate(w, r)
	if !ok {
		return
	}
	res, err := s.calc.Strict(r.Context(), calc.Request{
		ActivityType: domain.ActivityType(req.ActivityType),
		Quantity:     req.Quantity,
		Unit:         req.Unit,
	})
	if err != nil {
		switch {
		case errors.Is(err, calc.ErrUpstreamStatus):
			WriteBadGateway(w, err.Error())
		case errors.Is(err, calc.ErrUpstreamUnreachable):
			WriteServiceUnavailable(w, "calculation provider is unreachable")
		default:
			s.log.Error("estimate failed", "error", err)
			WriteInternalError(w)
		}
		return
	}
	WriteJSON(w, http.StatusOK, estimateResponse{CO2eKg: res.CO2eKg, Source: res.Source, Fallback: res.Fallback})
}

// handleQuickEstimate answers the onboarding wizard from whichever provider
// is available; fallback results are fine here.
func (s *Server) handleQuickEstimate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEstimate(w, r)
	if !ok {
		return
	}
	res, err := s.calc.Estimate(r.Context(), calc.Request{
		ActivityType: domain.ActivityType(req.ActivityType),
		Quantity:     req.Quantity,
		Unit:         req.Unit,
	})
	if err != nil {
		s.log.Error("quick estimate failed", "error", err)
		WriteInternalError(w)
		return
	}
	WriteJSON(w, http.StatusOK, estimateResponse{CO2eKg: res.CO2eKg, Source: res.Source, Fallback: res.Fallback})
}

func (s *Server) decodeEstimate(w http.ResponseWriter, r *http.Request) (estimateRequest, bool) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return req, false
	}
	if !domain.ActivityType(req.ActivityType).Valid() {
		WriteBadRequest(w, "unknown activity_type")
		return req, false
	}
	if req.Quantity <= 0 {
		WriteBadRequest(w, "quantity must be positive")
		return req, false
	}
	return req, true
}
