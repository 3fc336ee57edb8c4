package calc

import (
	"context"
	"fmt"

	"github.com/karbonuyum/platform/pkg/domain"
)

// Internal factor table, kgCO2e per unit. Grid electricity uses the Turkish
// national grid average; fuels use stationary combustion factors.
var internalFactors = map[domain.ActivityType]struct {
	Factor float64
	Unit   string
}{
	domain.ActivityElectricity: {Factor: 0.475, Unit: "kWh"},
	domain.ActivityNaturalGas:  {Factor: 2.03, Unit: "m3"},
	domain.ActivityDieselFuel:  {Factor: 2.68, Unit: "L"},
}

// Internal is the always-available fallback provider.
type Internal struct{}

func NewInternal() *Internal { return &Internal{} }

func (i *Internal) Name() string { return "internal" }

func (i *Internal) Estimate(_ context.Context, req Request) (Result, error) {
	entry, ok := internalFactors[req.ActivityType]
	if !ok {
		return Result{}, fmt.Errorf("calc: no internal factor for activity type %q", req.ActivityType)
	}
	return Result{
		CO2eKg:   req.Quantity * entry.Factor,
		Source:   i.Name(),
		Fallback: true,
	}, nil
}

// FactorFor exposes the internal factor for report builders that embed the
// factor in the artifact.
func FactorFor(t domain.ActivityType) (float64, bool) {
	entry, ok := internalFactors[t]
	return entry.Factor, ok
}
