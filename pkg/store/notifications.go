package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/karbonuyum/platform/pkg/domain"
)

// NotificationStore persists in-app notifications.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, kind, title, message, company_id, facility_id, action_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		n.UserID, n.Kind, n.Title, n.Message, n.CompanyID, n.FacilityID, n.ActionURL,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create notification: %w", err)
	}
	return n, nil
}

// ForUser lists notifications newest first; unreadOnly narrows to unread.
func (s *NotificationStore) ForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, user_id, kind, title, message, company_id, facility_id, action_url, is_read, created_at
	      FROM notifications WHERE user_id = $1`
	if unreadOnly {
		q += ` AND is_read = FALSE`
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message,
			&n.CompanyID, &n.FacilityID, &n.ActionURL, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one notification read; the user scoping prevents marking
// someone else's notification.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("store: mark notification read: %w", err)
	}
	return requireRow(res)
}

// MarkAllRead flags every unread notification of a user.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return fmt.Errorf("store: mark all read: %w", err)
	}
	return nil
}
