package calc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/karbonuyum/platform/pkg/observability"
)

// Service routes calculations to the external provider and falls back to the
// internal table when the provider is missing or unreachable. The synchronous
// gateway path (Strict) never falls back: provider failures surface to the
// caller instead.
type Service struct {
	external *Climatiq
	internal *Internal
	metrics  *observability.Metrics
	log      *slog.Logger
}

func NewService(external *Climatiq, metrics *observability.Metrics, log *slog.Logger) *Service {
	return &Service{
		external: external,
		internal: NewInternal(),
		metrics:  metrics,
		log:      log,
	}
}

// Estimate tries the external provider and falls back when it is missing or
// down. The ingestion workers use this path: an outage still yields a number.
// A 4xx from the provider means the request itself was rejected; that error
// surfaces instead of being papered over with the factor table.
func (s *Service) Estimate(ctx context.Context, req Request) (Result, error) {
	if s.external != nil && s.external.Configured() {
		res, err := s.external.Estimate(ctx, req)
		if err == nil {
			s.count(ctx, s.external.Name(), "ok")
			return res, nil
		}
		s.count(ctx, s.external.Name(), "error")
		var se *StatusError
		if errors.As(err, &se) && se.ClientFault() {
			return Result{}, err
		}
		s.log.Warn("external calculation failed, using internal factors",
			"activity_type", req.ActivityType, "error", err)
	}

	res, err := s.internal.Estimate(ctx, req)
	if err != nil {
		s.count(ctx, s.internal.Name(), "error")
		return Result{}, err
	}
	s.count(ctx, s.internal.Name(), "ok")
	s.metrics.CalcFallbacks.Add(ctx, 1)
	return res, nil
}

// Strict calls the external provider only. A missing API key behaves like an
// unreachable provider so the gateway's error mapping stays uniform.
func (s *Service) Strict(ctx context.Context, req Request) (Result, error) {
	if s.external == nil || !s.external.Configured() {
		s.count(ctx, "climatiq", "unconfigured")
		return Result{}, fmt.Errorf("%w: external provider not configured", ErrUpstreamUnreachable)
	}
	res, err := s.external.Estimate(ctx, req)
	if err != nil {
		s.count(ctx, s.external.Name(), "error")
		return Result{}, err
	}
	s.count(ctx, s.external.Name(), "ok")
	return res, nil
}

func (s *Service) count(ctx context.Context, provider, outcome string) {
	s.metrics.CalcRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome)))
}
