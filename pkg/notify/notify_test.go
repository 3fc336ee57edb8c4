package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	to      []string
	subject []string
	body    []string
	err     error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	m.body = append(m.body, body)
	return m.err
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmailDeliversThroughMailer(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewService(nil, nil, mailer, discardLog())

	svc.Email(context.Background(), "tedarikci@example.com", "Tedarikçi veri paylaşım daveti", "Daveti kabul etmek için bu kodu kullanın: abc123")

	require.Len(t, mailer.to, 1)
	assert.Equal(t, "tedarikci@example.com", mailer.to[0])
	assert.Equal(t, "Tedarikçi veri paylaşım daveti", mailer.subject[0])
	assert.Contains(t, mailer.body[0], "abc123")
}

func TestEmailWithoutMailerIsNoOp(t *testing.T) {
	svc := NewService(nil, nil, nil, discardLog())
	svc.Email(context.Background(), "tedarikci@example.com", "konu", "mesaj")
}

func TestEmailSwallowsSendFailure(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("endpoint returned 503")}
	svc := NewService(nil, nil, mailer, discardLog())

	svc.Email(context.Background(), "tedarikci@example.com", "konu", "mesaj")
	assert.Len(t, mailer.to, 1)
}
