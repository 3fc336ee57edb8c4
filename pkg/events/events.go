// Package events defines the platform's event envelopes and the Redis-backed
// queue bus the workers consume. Producers never wait on consumers: a publish
// is a single LPUSH and the HTTP request returns.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/karbonuyum/platform/pkg/domain"
)

// Queue names. Routing is static: each event type goes to exactly one queue.
const (
	QueueIngestion   = "q_ingestion"
	QueueInvalidData = "q_invalid_data"
	QueueReports     = "q_reports"
	QueueAnalytics   = "q_analytics"
	QueueDeadLetter  = "q_dead_letter"
)

// Event types.
const (
	TypeActivityCreated  = "activity_data.created"
	TypeActivityInvalid  = "activity_data.invalid"
	TypeInvoiceUploaded  = "invoice.uploaded"
	TypeReportRequested  = "report.requested"
	TypeROIRequested     = "roi.requested"
	TypeAnalyticsRefresh = "analytics.refresh"
)

// Envelope is the common wire frame. EventID is the idempotency key: a
// consumer that has seen the id before acknowledges without reprocessing.
type Envelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Attempt    int       `json:"attempt"`
}

// NewEnvelope stamps a fresh envelope for an event type.
func NewEnvelope(eventType string) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// ActivityCreated asks an ingestion worker to calculate emissions for one
// stored record.
type ActivityCreated struct {
	Envelope
	ActivityDataID int64               `json:"activity_data_id"`
	FacilityID     int64               `json:"facility_id"`
	ActivityType   domain.ActivityType `json:"activity_type"`
	Quantity       float64             `json:"quantity"`
	Unit           string              `json:"unit"`
}

// ActivityInvalid carries a rejected submission to the data quality queue.
type ActivityInvalid struct {
	Envelope
	FacilityID *int64 `json:"facility_id,omitempty"`
	Code       string `json:"code"`
	Field      string `json:"field"`
	Message    string `json:"message"`
	Payload    string `json:"payload"`
}

// InvoiceUploaded asks an OCR worker to process an uploaded bill.
type InvoiceUploaded struct {
	Envelope
	InvoiceID  int64 `json:"invoice_id"`
	FacilityID int64 `json:"facility_id"`
	UserID     int64 `json:"user_id"`
}

// ReportRequested asks a report worker to generate an artifact.
type ReportRequested struct {
	Envelope
	ReportID  int64             `json:"report_id"`
	CompanyID int64             `json:"company_id"`
	Type      domain.ReportType `json:"type"`
}

// AnalyticsRefresh triggers a periodic analytics job by name
// (industry_benchmarks|leaderboards|anomaly_scan).
type AnalyticsRefresh struct {
	Envelope
	Job string `json:"job"`
}

// DeadLetter is the terminal envelope published after retries are exhausted.
type DeadLetter struct {
	FailedTaskName string `json:"failed_task_name"`
	OriginalEvent  string `json:"original_event"`
	ErrorMessage   string `json:"error_message"`
}
