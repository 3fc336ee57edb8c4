// Package calc computes CO2e for activity records. An external provider is
// preferred; a built-in factor table answers when the provider is down, and
// every fallback result is flagged so benchmarks can exclude it.
package calc

import (
	"context"
	"errors"
	"fmt"

	"github.com/karbonuyum/platform/pkg/domain"
)

// Request is one emission calculation.
type Request struct {
	ActivityType domain.ActivityType
	Quantity     float64
	Unit         string
}

// Result is the computed emission. Fallback marks results from the internal
// factor table rather than the external provider.
type Result struct {
	CO2eKg   float64
	Source   string
	Fallback bool
}

// Provider computes emissions for a request.
type Provider interface {
	Name() string
	Estimate(ctx context.Context, req Request) (Result, error)
}

// ErrUpstreamStatus marks a provider response with a non-2xx status. The
// gateway maps it to 502.
var ErrUpstreamStatus = errors.New("calc: upstream returned error status")

// ErrUpstreamUnreachable marks a transport failure reaching the provider.
// The gateway maps it to 503.
var ErrUpstreamUnreachable = errors.New("calc: upstream unreachable")

// StatusError carries the provider's HTTP status so callers can tell a
// rejected request (4xx, the caller's fault) from a provider outage (5xx).
type StatusError struct {
	Status  int
	Snippet string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calc: upstream returned status %d: %s", e.Status, e.Snippet)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

// ClientFault reports whether the provider rejected the request itself.
// Those responses are returned verbatim; only outages fall back.
func (e *StatusError) ClientFault() bool {
	return e.Status >= 400 && e.Status < 500
}
