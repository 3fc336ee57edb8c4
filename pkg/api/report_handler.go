package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/events"
)

type reportRequest struct {
	CompanyID           int64  `json:"company_id"`
	ReportType          string `json:"report_type"`
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	NotifyUserWhenReady bool   `json:"notify_user_when_ready"`
}

type reportResponse struct {
	ID             int64    `json:"id"`
	CompanyID      int64    `json:"company_id"`
	ReportType     string   `json:"report_type"`
	PeriodName     string   `json:"period_name"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	Status         string   `json:"status"`
	DownloadCount  int      `json:"download_count"`
	TotalSavingsTL *float64 `json:"total_savings_tl,omitempty"`
	ErrorMessage   *string  `json:"error_message,omitempty"`
	ExpiresAt      *string  `json:"expires_at,omitempty"`
}

func toReportResponse(r *domain.Report) reportResponse {
	out := reportResponse{
		ID:             r.ID,
		CompanyID:      r.CompanyID,
		ReportType:     string(r.ReportType),
		PeriodName:     r.PeriodName,
		StartDate:      r.StartDate.Format("2006-01-02"),
		EndDate:        r.EndDate.Format("2006-01-02"),
		Status:         string(r.Status),
		DownloadCount:  r.DownloadCount,
		TotalSavingsTL: r.TotalSavingsTL,
		ErrorMessage:   r.ErrorMessage,
	}
	if r.ExpiresAt != nil {
		v := r.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		out.ExpiresAt = &v
	}
	return out
}

func (s *Server) handleReportCreate(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	reportType := domain.ReportType(req.ReportType)
	switch reportType {
	case domain.ReportCBAMXML, domain.ReportROIAnalysis, domain.ReportCombined:
	default:
		WriteBadRequest(w, "report_type must be cbam_xml, roi_analysis or combined")
		return
	}
	start, ok := parseDateField(req.StartDate)
	end, ok2 := parseDateField(req.EndDate)
	if !ok || !ok2 || !end.After(start) {
		WriteBadRequest(w, "start_date and end_date must be YYYY-MM-DD with end after start")
		return
	}

	u := CurrentUser(r.Context())
	member, err := s.authz.Member(r.Context(), u.ID, req.CompanyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if !member.Role.CanWriteActivity() {
		WriteForbidden(w, "")
		return
	}

	ev := events.ReportRequested{
		Envelope:  events.NewEnvelope(events.TypeReportRequested),
		CompanyID: req.CompanyID,
		Type:      reportType,
	}
	rep, err := s.reports.Create(r.Context(), &domain.Report{
		CompanyID:           req.CompanyID,
		UserID:              u.ID,
		ReportType:          reportType,
		PeriodName:          domain.QuarterName(start),
		StartDate:           start,
		EndDate:             end,
		TaskID:              ev.EventID,
		NotifyUserWhenReady: req.NotifyUserWhenReady,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	ev.ReportID = rep.ID
	if err := s.bus.Publish(r.Context(), events.QueueReports, ev); err != nil {
		s.log.Error("report event publish failed", "report_id", rep.ID, "error", err)
		WriteInternalError(w)
		return
	}
	WriteJSON(w, http.StatusAccepted, toReportResponse(rep))
}

func (s *Server) handleReportList(w http.ResponseWriter, r *http.Request) {
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
	reports, err := s.reports.ForCompany(r.Context(), companyID, 50, 0)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]reportResponse, 0, len(reports))
	for i := range reports {
		out = append(out, toReportResponse(&reports[i]))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) reportForMember(w http.ResponseWriter, r *http.Request) (*domain.Report, bool) {
	reportID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid report id")
		return nil, false
	}
	rep, err := s.reports.ByID(r.Context(), reportID)
	if err != nil {
		s.storeError(w, err)
		return nil, false
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.Member(r.Context(), u.ID, rep.CompanyID); err != nil {
		s.storeError(w, err)
		return nil, false
	}
	return rep, true
}

func (s *Server) handleReportGet(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportForMember(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, toReportResponse(rep))
}

func (s *Server) handleReportDownload(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportForMember(w, r)
	if !ok {
		return
	}
	switch rep.Status {
	case domain.ReportCompleted:
	case domain.ReportExpired:
		WriteError(w, http.StatusGone, "Gone", "report artifact has expired")
		return
	default:
		WriteConflict(w, fmt.Sprintf("report is %s, not ready for download", rep.Status))
		return
	}
	if rep.FilePath == nil {
		s.log.Error("completed report without artifact", "report_id", rep.ID)
		WriteInternalError(w)
		return
	}

	data, err := s.artifacts.Get(r.Context(), *rep.FilePath)
	if err != nil {
		s.log.Error("report artifact read failed", "report_id", rep.ID, "error", err)
		WriteInternalError(w)
		return
	}
	if err := s.reports.IncrementDownloads(r.Context(), rep.ID); err != nil {
		s.log.Warn("download counter update failed", "report_id", rep.ID, "error", err)
	}

	filename := path.Base(*rep.FilePath)
	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(filename, ".xml"):
		contentType = "application/xml"
	case strings.HasSuffix(filename, ".json"):
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
