package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestWriteErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "Conflict", "already processed")

	assert.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "https://karbonuyum.io/errors/409", p.Type)
	assert.Equal(t, "Conflict", p.Title)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, "already processed", p.Detail)
}

func TestWriteErrorRCarriesRequestContext(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-123")
	r := httptest.NewRequest(http.MethodGet, "/api/v1/reports/9", nil)

	WriteErrorR(rec, r, http.StatusGone, "Gone", "report file expired")

	p := decodeProblem(t, rec)
	assert.Equal(t, "/api/v1/reports/9", p.Instance)
	assert.Equal(t, "req-123", p.TraceID)
}

func TestWriteValidationErrorCarriesIssues(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, []map[string]string{{"field": "quantity", "code": "non_positive"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Errors []map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "quantity", body.Errors[0]["field"])
}

func TestWriteTooManyRequestsSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTooManyRequests(rec, 60)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestWriteUnauthorizedDefaultDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteUnauthorized(rec, "")
	p := decodeProblem(t, rec)
	assert.Equal(t, "Authentication required", p.Detail)
}
