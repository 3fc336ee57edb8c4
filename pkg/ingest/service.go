package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/karbonuyum/platform/pkg/calc"
	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/store"
	"github.com/karbonuyum/platform/pkg/validation"
)

// Service stores submissions and hands calculation to the event pipeline.
// With the pipeline disabled it calculates inline, so single-node
// deployments behave the same, just synchronously.
type Service struct {
	activities *store.ActivityStore
	bus        *events.Bus
	calc       *calc.Service
	pipeline   bool
	log        *slog.Logger
}

func NewService(activities *store.ActivityStore, bus *events.Bus, calcSvc *calc.Service, pipelineEnabled bool, log *slog.Logger) *Service {
	return &Service{
		activities: activities,
		bus:        bus,
		calc:       calcSvc,
		pipeline:   pipelineEnabled,
		log:        log,
	}
}

// Submission is a validated JSON activity submission.
type Submission struct {
	FacilityID   int64               `json:"facility_id"`
	ActivityType domain.ActivityType `json:"activity_type"`
	Quantity     float64             `json:"quantity"`
	Unit         string              `json:"unit"`
	StartDate    time.Time           `json:"-"`
	EndDate      time.Time           `json:"-"`
	IsSimulation bool                `json:"is_simulation"`
}

// Submit validates, stores and schedules calculation for one record.
func (s *Service) Submit(ctx context.Context, sub Submission) (*domain.ActivityData, []validation.Issue, error) {
	issues := validation.CheckRecord(sub.ActivityType, sub.Quantity, sub.Unit, sub.StartDate, sub.EndDate)
	if len(issues) > 0 {
		s.publishInvalid(ctx, &sub.FacilityID, issues, sub)
		return nil, issues, nil
	}

	quantity, unit := validation.Normalize(sub.ActivityType, sub.Quantity, sub.Unit)
	rec := &domain.ActivityData{
		FacilityID:   sub.FacilityID,
		ActivityType: sub.ActivityType,
		Quantity:     quantity,
		Unit:         unit,
		StartDate:    sub.StartDate,
		EndDate:      sub.EndDate,
		IsSimulation: sub.IsSimulation,
	}
	rec, err := s.activities.Create(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	if err := s.schedule(ctx, rec); err != nil {
		return nil, nil, err
	}
	return rec, nil, nil
}

// ImportCSV parses the file, stores every valid row and schedules its
// calculation. Valid rows commit even when other rows fail.
func (s *Service) ImportCSV(ctx context.Context, facilityID int64, r io.Reader) (*CSVResult, error) {
	rows, rowErrs, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}

	result := &CSVResult{
		TotalRows:  len(rows) + len(rowErrs),
		FailedRows: len(rowErrs),
		Errors:     rowErrs,
	}
	for _, row := range rowErrs {
		s.publishInvalid(ctx, &facilityID, row.Issues, row)
	}
	for _, row := range rows {
		rec := &domain.ActivityData{
			FacilityID:   facilityID,
			ActivityType: row.ActivityType,
			Quantity:     row.Quantity,
			Unit:         row.Unit,
			StartDate:    row.StartDate,
			EndDate:      row.EndDate,
		}
		rec, err := s.activities.Create(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("ingest: store csv row: %w", err)
		}
		if err := s.schedule(ctx, rec); err != nil {
			return nil, err
		}
		result.SuccessfulRows++
	}
	return result, nil
}

// schedule publishes a calculation event, or calculates inline when the
// pipeline is off.
func (s *Service) schedule(ctx context.Context, rec *domain.ActivityData) error {
	if s.pipeline {
		ev := events.ActivityCreated{
			Envelope:       events.NewEnvelope(events.TypeActivityCreated),
			ActivityDataID: rec.ID,
			FacilityID:     rec.FacilityID,
			ActivityType:   rec.ActivityType,
			Quantity:       rec.Quantity,
			Unit:           rec.Unit,
		}
		if err := s.bus.Publish(ctx, events.QueueIngestion, ev); err != nil {
			return fmt.Errorf("ingest: publish calculation event: %w", err)
		}
		return nil
	}

	res, err := s.calc.Estimate(ctx, calc.Request{
		ActivityType: rec.ActivityType,
		Quantity:     rec.Quantity,
		Unit:         rec.Unit,
	})
	if err != nil {
		return fmt.Errorf("ingest: inline calculation: %w", err)
	}
	if err := s.activities.SetCalculation(ctx, rec.ID, res.CO2eKg, res.Fallback); err != nil {
		return err
	}
	rec.CalculatedCO2eKg = &res.CO2eKg
	rec.IsFallbackCalculation = res.Fallback
	return nil
}

func (s *Service) publishInvalid(ctx context.Context, facilityID *int64, issues []validation.Issue, payload any) {
	raw, _ := json.Marshal(payload)
	for _, issue := range issues {
		ev := events.ActivityInvalid{
			Envelope:   events.NewEnvelope(events.TypeActivityInvalid),
			FacilityID: facilityID,
			Code:       issue.Code,
			Field:      issue.Field,
			Message:    issue.Message,
			Payload:    string(raw),
		}
		if err := s.bus.Publish(ctx, events.QueueInvalidData, ev); err != nil {
			s.log.Warn("failed to publish invalid data event", "error", err)
		}
	}
}
