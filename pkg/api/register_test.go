package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func registerTestServer() *Server {
	return &Server{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func postRegister(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handleRegister(rec, r)
	return rec
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	rec := postRegister(t, registerTestServer(),
		`{"email":"ayse@example.com","password":"kisa"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	// 80 bytes, past what bcrypt will hash.
	long := strings.Repeat("a", 80)
	rec := postRegister(t, registerTestServer(),
		`{"email":"ayse@example.com","password":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "72")
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	rec := postRegister(t, registerTestServer(),
		`{"email":"not-an-email","password":"yeterince-uzun"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
