package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/auth"
	"github.com/karbonuyum/platform/pkg/authz"
	"github.com/karbonuyum/platform/pkg/store"
)

func authTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Server{
		users:  store.NewUserStore(db),
		tokens: auth.NewTokenIssuer("test-secret", time.Hour),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, mock
}

func userRow(id int64, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(
		[]string{"id", "email", "hashed_password", "is_active", "is_superuser", "created_at"}).
		AddRow(id, "ayse@example.com", "x", active, false, time.Now())
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	s, _ := authTestServer(t)
	var hit bool

	rec := httptest.NewRecorder()
	s.Authenticate(okHandler(&hit)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestAuthenticateRejectsInvalidToken(t *testing.T) {
	s, _ := authTestServer(t)
	var hit bool

	r := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.Authenticate(okHandler(&hit)).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestAuthenticateRejectsInactiveAccount(t *testing.T) {
	s, mock := authTestServer(t)
	token, err := s.tokens.Issue(7, "ayse@example.com", time.Now())
	require.NoError(t, err)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs(int64(7)).WillReturnRows(userRow(7, false))

	var hit bool
	r := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Authenticate(okHandler(&hit)).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestAuthenticateLoadsUserIntoContext(t *testing.T) {
	s, mock := authTestServer(t)
	token, err := s.tokens.Issue(7, "ayse@example.com", time.Now())
	require.NoError(t, err)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs(int64(7)).WillReturnRows(userRow(7, true))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := CurrentUser(r.Context())
		require.NotNil(t, u)
		assert.Equal(t, int64(7), u.ID)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return s.allowed, s.err
}

func TestRateLimitBlocksWithRetryAfter(t *testing.T) {
	s, _ := authTestServer(t)
	var hit bool

	rec := httptest.NewRecorder()
	s.RateLimit(stubLimiter{allowed: false}, 60)(okHandler(&hit)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/calculations/estimate", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.False(t, hit)
}

func TestRateLimitFailsOpenOnBackendError(t *testing.T) {
	s, _ := authTestServer(t)
	var hit bool

	rec := httptest.NewRecorder()
	s.RateLimit(stubLimiter{err: errors.New("redis down")}, 60)(okHandler(&hit)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hit)
}

func TestStoreErrorMapping(t *testing.T) {
	s, _ := authTestServer(t)
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrConflict, http.StatusConflict},
		{authz.ErrForbidden, http.StatusForbidden},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.storeError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestRequestIDGeneratesAndReuses(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "client-supplied")
	h.ServeHTTP(rec, r)
	assert.Equal(t, "client-supplied", rec.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'; script-src 'self'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestClientKeyPrefersAuthenticatedUser(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.RemoteAddr = "192.0.2.1:51234"
	assert.Equal(t, "ip:192.0.2.1", clientKey(r))
}
