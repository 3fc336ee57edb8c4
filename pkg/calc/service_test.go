package calc

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testService(t *testing.T, external *Climatiq) *Service {
	t.Helper()
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	return NewService(external, metrics, testLogger())
}

func TestEstimateFallsBackWhenProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := testService(t, NewClimatiq("key", srv.URL))
	res, err := svc.Estimate(context.Background(), Request{
		ActivityType: domain.ActivityElectricity,
		Quantity:     1500,
		Unit:         "kWh",
	})
	require.NoError(t, err)
	assert.InDelta(t, 712.5, res.CO2eKg, 1e-9)
	assert.True(t, res.Fallback)
	assert.Equal(t, "internal", res.Source)
}

func TestEstimateSurfacesProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad_request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := testService(t, NewClimatiq("key", srv.URL))
	_, err := svc.Estimate(context.Background(), Request{
		ActivityType: domain.ActivityElectricity,
		Quantity:     1500,
		Unit:         "kWh",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamStatus)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.True(t, se.ClientFault())
}

func TestEstimateUsesProviderWhenHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"co2e": 0.65, "co2e_unit": "t"}`))
	}))
	defer srv.Close()

	svc := testService(t, NewClimatiq("key", srv.URL))
	res, err := svc.Estimate(context.Background(), Request{
		ActivityType: domain.ActivityNaturalGas,
		Quantity:     320,
		Unit:         "m3",
	})
	require.NoError(t, err)
	assert.InDelta(t, 650.0, res.CO2eKg, 1e-9)
	assert.False(t, res.Fallback)
	assert.Equal(t, "climatiq", res.Source)
}

func TestEstimateWithoutAPIKeyUsesInternalFactors(t *testing.T) {
	svc := testService(t, NewClimatiq("", "http://unused"))

	cases := []struct {
		at       domain.ActivityType
		quantity float64
		want     float64
	}{
		{domain.ActivityElectricity, 1000, 475},
		{domain.ActivityNaturalGas, 100, 203},
		{domain.ActivityDieselFuel, 50, 134},
	}
	for _, tc := range cases {
		res, err := svc.Estimate(context.Background(), Request{ActivityType: tc.at, Quantity: tc.quantity})
		require.NoError(t, err)
		assert.InDelta(t, tc.want, res.CO2eKg, 1e-9)
		assert.True(t, res.Fallback)
	}
}

func TestStrictNeverFallsBack(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		svc := testService(t, NewClimatiq("", "http://unused"))
		_, err := svc.Strict(context.Background(), Request{ActivityType: domain.ActivityElectricity, Quantity: 1})
		assert.ErrorIs(t, err, ErrUpstreamUnreachable)
	})

	t.Run("upstream status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()
		svc := testService(t, NewClimatiq("key", srv.URL))
		_, err := svc.Strict(context.Background(), Request{ActivityType: domain.ActivityElectricity, Quantity: 1})
		assert.ErrorIs(t, err, ErrUpstreamStatus)
	})

	t.Run("unreachable", func(t *testing.T) {
		svc := testService(t, NewClimatiq("key", "http://127.0.0.1:1"))
		_, err := svc.Strict(context.Background(), Request{ActivityType: domain.ActivityElectricity, Quantity: 1})
		assert.ErrorIs(t, err, ErrUpstreamUnreachable)
	})
}

func TestEstimateUnknownActivityType(t *testing.T) {
	svc := testService(t, NewClimatiq("", ""))
	_, err := svc.Estimate(context.Background(), Request{ActivityType: "kerosene", Quantity: 1})
	assert.Error(t, err)
}
