package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karbonuyum/platform/pkg/artifacts"
	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/notify"
	"github.com/karbonuyum/platform/pkg/store"
)

// Worker generates requested report artifacts. A failed generation returns
// an error so the runtime can retry with the per-type backoff; the terminal
// failure path marks the row failed before the event dead-letters.
type Worker struct {
	reports    *store.ReportStore
	companies  *store.CompanyStore
	facilities *store.FacilityStore
	activities *store.ActivityStore
	financials *store.FinancialsStore
	users      *store.UserStore
	eventLog   *store.EventLogStore
	artifacts  artifacts.Store
	notifier   *notify.Service
	ttl        time.Duration
	log        *slog.Logger
}

func NewWorker(
	reports *store.ReportStore,
	companies *store.CompanyStore,
	facilities *store.FacilityStore,
	activities *store.ActivityStore,
	financials *store.FinancialsStore,
	users *store.UserStore,
	eventLog *store.EventLogStore,
	artifactStore artifacts.Store,
	notifier *notify.Service,
	ttl time.Duration,
	log *slog.Logger,
) *Worker {
	return &Worker{
		reports:    reports,
		companies:  companies,
		facilities: facilities,
		activities: activities,
		financials: financials,
		users:      users,
		eventLog:   eventLog,
		artifacts:  artifactStore,
		notifier:   notifier,
		ttl:        ttl,
		log:        log,
	}
}

// HandleReportRequested builds and stores one artifact.
func (w *Worker) HandleReportRequested(ctx context.Context, payload []byte) error {
	var ev events.ReportRequested
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("report: decode report event: %w", err)
	}

	rep, err := w.reports.ByID(ctx, ev.ReportID)
	if err != nil {
		return fmt.Errorf("report: load report %d: %w", ev.ReportID, err)
	}
	if rep.Status != domain.ReportPending && rep.Status != domain.ReportProcessing {
		w.log.Info("report already finished", "report_id", rep.ID, "status", rep.Status)
		return w.eventLog.Append(ctx, ev.EventID, ev.EventType, "skipped")
	}
	if rep.Status == domain.ReportPending {
		if err := w.reports.MarkProcessing(ctx, rep.ID); err != nil {
			return fmt.Errorf("report: mark processing %d: %w", rep.ID, err)
		}
	}

	data, filename, totalSavings, err := w.build(ctx, rep)
	if err != nil {
		return fmt.Errorf("report: build %d: %w", rep.ID, err)
	}

	// The row stores the artifact key, not the backend-specific location, so
	// download and cleanup work against either storage backend.
	key := fmt.Sprintf("reports/%d/%s", rep.CompanyID, filename)
	if _, err := w.artifacts.Put(ctx, key, data); err != nil {
		return fmt.Errorf("report: store artifact for %d: %w", rep.ID, err)
	}
	if err := w.reports.MarkCompleted(ctx, rep.ID, key, int64(len(data)), totalSavings, w.ttl); err != nil {
		return fmt.Errorf("report: mark completed %d: %w", rep.ID, err)
	}

	if rep.NotifyUserWhenReady {
		n := &domain.Notification{
			UserID:    rep.UserID,
			Kind:      "report_ready",
			Title:     "Raporunuz hazır",
			Message:   fmt.Sprintf("%s raporu (%s) indirilmeye hazır.", rep.ReportType, rep.PeriodName),
			CompanyID: &rep.CompanyID,
		}
		if err := w.notifier.Notify(ctx, n); err != nil {
			w.log.Warn("report notification failed", "report_id", rep.ID, "error", err)
		}
	}

	w.log.Info("report generated", "report_id", rep.ID, "type", rep.ReportType, "bytes", len(data))
	return w.eventLog.Append(ctx, ev.EventID, ev.EventType, "processed")
}

// MarkTerminalFailure records the error on the row once retries are spent.
// The worker runtime calls this right before dead-lettering.
func (w *Worker) MarkTerminalFailure(ctx context.Context, payload []byte, cause error) {
	var ev events.ReportRequested
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	if err := w.reports.MarkFailed(ctx, ev.ReportID, cause.Error()); err != nil {
		w.log.Error("failed to record report failure", "report_id", ev.ReportID, "error", err)
	}
}

func (w *Worker) build(ctx context.Context, rep *domain.Report) (data []byte, filename string, totalSavings *float64, err error) {
	company, err := w.companies.ByID(ctx, rep.CompanyID)
	if err != nil {
		return nil, "", nil, err
	}
	records, err := w.activities.ForCompanyWindow(ctx, rep.CompanyID, rep.StartDate, rep.EndDate)
	if err != nil {
		return nil, "", nil, err
	}

	switch rep.ReportType {
	case domain.ReportCBAMXML:
		data, err = w.buildCBAM(ctx, rep, company, records)
		if err != nil {
			return nil, "", nil, err
		}
		return data, fmt.Sprintf("cbam-%s-%d.xml", rep.PeriodName, rep.ID), nil, nil

	case domain.ReportROIAnalysis:
		analysis, err := w.analyzeCompany(ctx, rep.CompanyID, records)
		if err != nil {
			return nil, "", nil, err
		}
		data, err = json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return nil, "", nil, fmt.Errorf("report: marshal ROI analysis: %w", err)
		}
		return data, fmt.Sprintf("roi-%s-%d.json", rep.PeriodName, rep.ID), &analysis.TotalSavingsTL, nil

	case domain.ReportCombined:
		xmlData, err := w.buildCBAM(ctx, rep, company, records)
		if err != nil {
			return nil, "", nil, err
		}
		analysis, err := w.analyzeCompany(ctx, rep.CompanyID, records)
		if err != nil {
			return nil, "", nil, err
		}
		data, err = BuildCombined(rep.PeriodName, xmlData, analysis, time.Now())
		if err != nil {
			return nil, "", nil, err
		}
		return data, fmt.Sprintf("combined-%s-%d.json", rep.PeriodName, rep.ID), &analysis.TotalSavingsTL, nil

	default:
		return nil, "", nil, fmt.Errorf("report: unsupported report type %q", rep.ReportType)
	}
}

func (w *Worker) buildCBAM(ctx context.Context, rep *domain.Report, company *domain.Company, records []domain.ActivityData) ([]byte, error) {
	facilities, err := w.facilities.ForCompany(ctx, rep.CompanyID)
	if err != nil {
		return nil, err
	}
	ownerEmail := ""
	if owner, err := w.users.ByID(ctx, company.OwnerID); err == nil {
		ownerEmail = owner.Email
	} else {
		w.log.Warn("could not resolve company owner for declarant contact",
			"company_id", company.ID, "error", err)
	}
	return BuildCBAM(company, ownerEmail, facilities, records, rep.TaskID, rep.PeriodName, time.Now())
}

func (w *Worker) analyzeCompany(ctx context.Context, companyID int64, records []domain.ActivityData) (ROIAnalysis, error) {
	in := ROIInput{}
	for _, r := range records {
		switch r.ActivityType {
		case domain.ActivityElectricity:
			in.AnnualElectricityKwh += r.Quantity
		case domain.ActivityNaturalGas:
			in.AnnualGasM3 += r.Quantity
		case domain.ActivityDieselFuel:
			in.AnnualDieselL += r.Quantity
		}
	}

	facilities, err := w.facilities.ForCompany(ctx, companyID)
	if err != nil {
		return ROIAnalysis{}, err
	}
	for _, f := range facilities {
		if f.SurfaceAreaM2 != nil {
			in.SurfaceAreaM2 += *f.SurfaceAreaM2
		}
	}

	fin, err := w.financials.Get(ctx, companyID)
	if err == nil {
		if fin.AvgElectricityCostKwh != nil {
			in.ElectricityCostPerKwh = *fin.AvgElectricityCostKwh
		}
		if fin.AvgGasCostM3 != nil {
			in.GasCostPerM3 = *fin.AvgGasCostM3
		}
	}
	return AnalyzeROI(in), nil
}

// Cleanup expires due reports and removes their artifacts. Run periodically.
func (w *Worker) Cleanup(ctx context.Context) error {
	paths, err := w.reports.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := w.artifacts.Delete(ctx, p); err != nil {
			w.log.Warn("failed to delete expired artifact", "path", p, "error", err)
		}
	}
	if len(paths) > 0 {
		w.log.Info("expired reports cleaned", "count", len(paths))
	}
	return nil
}
