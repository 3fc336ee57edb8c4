package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/ingest"
	"github.com/karbonuyum/platform/pkg/ocr"
	"github.com/karbonuyum/platform/pkg/validation"
)

var allowedInvoiceTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

type invoiceResponse struct {
	ID                    int64    `json:"id"`
	FacilityID            int64    `json:"facility_id"`
	Filename              string   `json:"filename"`
	Status                string   `json:"status"`
	ExtractedActivityType *string  `json:"extracted_activity_type,omitempty"`
	ExtractedQuantity     *float64 `json:"extracted_quantity,omitempty"`
	ExtractedCostTL       *float64 `json:"extracted_cost_tl,omitempty"`
	ExtractedStartDate    *string  `json:"extracted_start_date,omitempty"`
	ExtractedEndDate      *string  `json:"extracted_end_date,omitempty"`
	Confidence            float64  `json:"confidence"`
	Uncertain             bool     `json:"needs_review"`
	ActivityDataID        *int64   `json:"activity_data_id,omitempty"`
}

func toInvoiceResponse(inv *domain.Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:             inv.ID,
		FacilityID:     inv.FacilityID,
		Filename:       inv.Filename,
		Status:         string(inv.Status),
		Confidence:     inv.Confidence,
		Uncertain:      inv.Confidence < ocr.UncertainThreshold,
		ActivityDataID: inv.ActivityDataID,
	}
	if inv.ExtractedActivityType != nil {
		v := string(*inv.ExtractedActivityType)
		out.ExtractedActivityType = &v
	}
	out.ExtractedQuantity = inv.ExtractedQuantity
	out.ExtractedCostTL = inv.ExtractedCostTL
	if inv.ExtractedStartDate != nil {
		v := inv.ExtractedStartDate.Format("2006-01-02")
		out.ExtractedStartDate = &v
	}
	if inv.ExtractedEndDate != nil {
		v := inv.ExtractedEndDate.Format("2006-01-02")
		out.ExtractedEndDate = &v
	}
	return out
}

func (s *Server) handleInvoiceUpload(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxInvoiceBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxInvoiceBytes); err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "invoice exceeds the size limit")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteBadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	ext, ok := allowedInvoiceTypes[strings.ToLower(mimeType)]
	if !ok {
		WriteError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", "only PDF, PNG and JPEG invoices are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteBadRequest(w, "could not read upload")
		return
	}
	// The row stores the artifact key, not the backend-specific location, so
	// the OCR worker can fetch it through either storage backend.
	key := fmt.Sprintf("invoices/%d/%s%s", facilityID, uuid.NewString(), ext)
	if _, err := s.artifacts.Put(r.Context(), key, data); err != nil {
		s.log.Error("invoice upload failed", "error", err)
		WriteInternalError(w)
		return
	}

	inv, err := s.invoices.Create(r.Context(), &domain.Invoice{
		FacilityID: facilityID,
		UserID:     u.ID,
		Filename:   filepath.Base(header.Filename),
		FilePath:   key,
		MimeType:   mimeType,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}

	ev := events.InvoiceUploaded{
		Envelope:   events.NewEnvelope(events.TypeInvoiceUploaded),
		InvoiceID:  inv.ID,
		FacilityID: facilityID,
		UserID:     u.ID,
	}
	if err := s.bus.Publish(r.Context(), events.QueueIngestion, ev); err != nil {
		s.log.Error("invoice event publish failed", "invoice_id", inv.ID, "error", err)
		WriteInternalError(w)
		return
	}
	WriteJSON(w, http.StatusAccepted, toInvoiceResponse(inv))
}

func (s *Server) handleInvoiceList(w http.ResponseWriter, r *http.Request) {
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
	invoices, err := s.invoices.ForFacility(r.Context(), facilityID, 50, 0)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, toInvoiceResponse(&invoices[i]))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvoiceGet(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid invoice id")
		return
	}
	inv, err := s.invoices.ByID(r.Context(), invoiceID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	u := CurrentUser(r.Context())
	if _, _, err := s.authz.Facility(r.Context(), u.ID, inv.FacilityID); err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// invoiceVerifyRequest carries the user's corrections to the extraction. An
// empty body means the parsed fields are accepted as-is.
type invoiceVerifyRequest struct {
	ActivityType *string  `json:"activity_type"`
	Quantity     *float64 `json:"quantity"`
	CostTL       *float64 `json:"cost_tl"`
	StartDate    *string  `json:"start_date"`
	EndDate      *string  `json:"end_date"`
}

// verifiedInvoice is the extraction after corrections are applied.
type verifiedInvoice struct {
	ActivityType domain.ActivityType
	Quantity     float64
	CostTL       *float64
	StartDate    time.Time
	EndDate      time.Time
}

// resolveVerification merges the user's corrections over the extracted
// fields. Anything still missing afterwards means the record has to be
// entered manually.
func resolveVerification(inv *domain.Invoice, req invoiceVerifyRequest) (verifiedInvoice, error) {
	var v verifiedInvoice
	if inv.ExtractedActivityType != nil {
		v.ActivityType = *inv.ExtractedActivityType
	}
	if req.ActivityType != nil {
		at := domain.ActivityType(*req.ActivityType)
		if !at.Valid() {
			return v, fmt.Errorf("unknown activity_type %q", *req.ActivityType)
		}
		v.ActivityType = at
	}
	if inv.ExtractedQuantity != nil {
		v.Quantity = *inv.ExtractedQuantity
	}
	if req.Quantity != nil {
		v.Quantity = *req.Quantity
	}
	v.CostTL = inv.ExtractedCostTL
	if req.CostTL != nil {
		v.CostTL = req.CostTL
	}
	if inv.ExtractedStartDate != nil {
		v.StartDate = *inv.ExtractedStartDate
	}
	if req.StartDate != nil {
		t, ok := parseDateField(*req.StartDate)
		if !ok {
			return v, fmt.Errorf("start_date must be YYYY-MM-DD")
		}
		v.StartDate = t
	}
	if inv.ExtractedEndDate != nil {
		v.EndDate = *inv.ExtractedEndDate
	}
	if req.EndDate != nil {
		t, ok := parseDateField(*req.EndDate)
		if !ok {
			return v, fmt.Errorf("end_date must be YYYY-MM-DD")
		}
		v.EndDate = t
	}
	return v, nil
}

// handleInvoiceVerify confirms a completed extraction: the user accepts or
// corrects the parsed fields, an activity record is created from them, and a
// known cost refreshes the company's unit-cost profile for ROI analyses.
func (s *Server) handleInvoiceVerify(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid invoice id")
		return
	}
	inv, err := s.invoices.ByID(r.Context(), invoiceID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	u := CurrentUser(r.Context())
	facility, err := s.authz.WritableFacility(r.Context(), u.ID, inv.FacilityID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if inv.Status != domain.InvoiceCompleted {
		WriteConflict(w, fmt.Sprintf("invoice is %s, only completed invoices can be verified", inv.Status))
		return
	}

	var req invoiceVerifyRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteBadRequest(w, "could not read request body")
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}
	}
	fields, err := resolveVerification(inv, req)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if fields.ActivityType == "" || fields.Quantity <= 0 ||
		fields.StartDate.IsZero() || fields.EndDate.IsZero() {
		WriteConflict(w, "extraction is incomplete, enter the record manually")
		return
	}

	rec, issues, err := s.ingest.Submit(r.Context(), ingest.Submission{
		FacilityID:   inv.FacilityID,
		ActivityType: fields.ActivityType,
		Quantity:     fields.Quantity,
		Unit:         validation.CanonicalUnit(fields.ActivityType),
		StartDate:    fields.StartDate,
		EndDate:      fields.EndDate,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	if len(issues) > 0 {
		WriteValidationError(w, issues)
		return
	}
	if err := s.invoices.Verify(r.Context(), inv.ID, rec.ID); err != nil {
		s.storeError(w, err)
		return
	}
	s.updateUnitCost(r.Context(), facility.CompanyID, fields)

	inv.Status = domain.InvoiceVerified
	inv.ActivityDataID = &rec.ID
	WriteJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// updateUnitCost refreshes the company's average unit cost from a verified
// invoice with a known total cost. Best effort: ROI analyses fall back to
// defaults without it.
func (s *Server) updateUnitCost(ctx context.Context, companyID int64, fields verifiedInvoice) {
	if fields.CostTL == nil || *fields.CostTL <= 0 || fields.Quantity <= 0 {
		return
	}
	unitCost := *fields.CostTL / fields.Quantity

	fin, err := s.financials.Get(ctx, companyID)
	if err != nil {
		fin = &domain.CompanyFinancials{CompanyID: companyID}
	}
	switch fields.ActivityType {
	case domain.ActivityElectricity:
		fin.AvgElectricityCostKwh = &unitCost
	case domain.ActivityNaturalGas:
		fin.AvgGasCostM3 = &unitCost
	default:
		return
	}
	if err := s.financials.Upsert(ctx, fin); err != nil {
		s.log.Warn("unit cost update failed", "company_id", companyID, "error", err)
	}
}
