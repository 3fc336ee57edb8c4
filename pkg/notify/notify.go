// Package notify delivers in-app notifications and, when configured,
// transactional email. Email failures are logged and swallowed: a missing
// mail never blocks the pipeline that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/store"
)

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SendGridMailer posts to the SendGrid v3 mail send endpoint.
type SendGridMailer struct {
	apiKey string
	from   string
	url    string
	client *http.Client
}

func NewSendGridMailer(apiKey, from, url string) *SendGridMailer {
	return &SendGridMailer{
		apiKey: apiKey,
		from:   from,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendGridPersonalization struct {
	To []map[string]string `json:"to"`
}

type sendGridMessage struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             map[string]string         `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []map[string]string       `json:"content"`
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := sendGridMessage{
		Personalizations: []sendGridPersonalization{{To: []map[string]string{{"email": to}}}},
		From:             map[string]string{"email": m.from},
		Subject:          subject,
		Content:          []map[string]string{{"type": "text/plain", "value": body}},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal mail: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: mail endpoint returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// Service fans a notification out to the in-app store and optionally email.
type Service struct {
	notifications *store.NotificationStore
	users         *store.UserStore
	mailer        Mailer
	log           *slog.Logger
}

func NewService(notifications *store.NotificationStore, users *store.UserStore, mailer Mailer, log *slog.Logger) *Service {
	return &Service{notifications: notifications, users: users, mailer: mailer, log: log}
}

// Notify stores the in-app notification and, when a mailer is configured,
// emails the user as well.
func (s *Service) Notify(ctx context.Context, n *domain.Notification) error {
	if _, err := s.notifications.Create(ctx, n); err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}
	user, err := s.users.ByID(ctx, n.UserID)
	if err != nil {
		s.log.Warn("notification saved but user lookup failed", "user_id", n.UserID, "error", err)
		return nil
	}
	if err := s.mailer.Send(ctx, user.Email, n.Title, n.Message); err != nil {
		s.log.Warn("notification email failed", "user_id", n.UserID, "error", err)
	}
	return nil
}

// Email sends a standalone email to an address outside the user table, such
// as a supplier contact. Without a mailer it is a logged no-op.
func (s *Service) Email(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		s.log.Info("no mailer configured, skipping email", "to", to, "subject", subject)
		return
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.log.Warn("email failed", "to", to, "error", err)
	}
}
