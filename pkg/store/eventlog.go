package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/karbonuyum/platform/pkg/domain"
)

// EventLogStore appends processed-event audit rows and data quality issues.
type EventLogStore struct {
	db *sql.DB
}

func NewEventLogStore(db *sql.DB) *EventLogStore {
	return &EventLogStore{db: db}
}

// Append records one processed event with its outcome
// (processed|skipped|failed|dead_lettered).
func (s *EventLogStore) Append(ctx context.Context, eventID, eventType, status string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_log (event_id, event_type, status) VALUES ($1, $2, $3)`,
		eventID, eventType, status)
	if err != nil {
		return fmt.Errorf("store: append event log: %w", err)
	}
	return nil
}

// RecentForEvent lists log rows for one event id, newest first.
func (s *EventLogStore) RecentForEvent(ctx context.Context, eventID string) ([]domain.EventLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, event_type, status, logged_at
		 FROM event_log WHERE event_id = $1 ORDER BY logged_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("store: read event log: %w", err)
	}
	defer rows.Close()

	var out []domain.EventLogEntry
	for rows.Next() {
		var e domain.EventLogEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.Status, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("store: scan event log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordIssue stores a validation rejection for data quality review.
func (s *EventLogStore) RecordIssue(ctx context.Context, i *domain.DataQualityIssue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO data_quality_issues (facility_id, code, field, message, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		i.FacilityID, i.Code, i.Field, i.Message, i.Payload)
	if err != nil {
		return fmt.Errorf("store: record data quality issue: %w", err)
	}
	return nil
}
