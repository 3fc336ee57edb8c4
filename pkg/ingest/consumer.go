package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/karbonuyum/platform/pkg/calc"
	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/store"
)

// Consumer processes the ingestion and invalid-data queues.
type Consumer struct {
	activities *store.ActivityStore
	eventLog   *store.EventLogStore
	calc       *calc.Service
	log        *slog.Logger
}

func NewConsumer(activities *store.ActivityStore, eventLog *store.EventLogStore, calcSvc *calc.Service, log *slog.Logger) *Consumer {
	return &Consumer{activities: activities, eventLog: eventLog, calc: calcSvc, log: log}
}

// HandleActivityCreated calculates and stores the emission for one record.
// The worker runtime has already claimed the event id; any error here
// releases the claim and retries.
func (c *Consumer) HandleActivityCreated(ctx context.Context, payload []byte) error {
	var ev events.ActivityCreated
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("ingest: decode activity event: %w", err)
	}

	res, err := c.calc.Estimate(ctx, calc.Request{
		ActivityType: ev.ActivityType,
		Quantity:     ev.Quantity,
		Unit:         ev.Unit,
	})
	if err != nil {
		return fmt.Errorf("ingest: calculate activity %d: %w", ev.ActivityDataID, err)
	}
	if err := c.activities.SetCalculation(ctx, ev.ActivityDataID, res.CO2eKg, res.Fallback); err != nil {
		return fmt.Errorf("ingest: store calculation for activity %d: %w", ev.ActivityDataID, err)
	}

	c.log.Info("activity calculated",
		"activity_data_id", ev.ActivityDataID,
		"co2e_kg", res.CO2eKg,
		"source", res.Source,
		"fallback", res.Fallback)
	return c.eventLog.Append(ctx, ev.EventID, ev.EventType, "processed")
}

// HandleActivityInvalid records a rejected submission for review.
func (c *Consumer) HandleActivityInvalid(ctx context.Context, payload []byte) error {
	var ev events.ActivityInvalid
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("ingest: decode invalid data event: %w", err)
	}
	issue := &domain.DataQualityIssue{
		FacilityID: ev.FacilityID,
		Code:       ev.Code,
		Field:      ev.Field,
		Message:    ev.Message,
		Payload:    ev.Payload,
	}
	if err := c.eventLog.RecordIssue(ctx, issue); err != nil {
		return err
	}
	return c.eventLog.Append(ctx, ev.EventID, ev.EventType, "processed")
}
