package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karbonuyum/platform/pkg/config"
	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/store"
)

func months(n int, quantity float64) []store.MonthlyTotal {
	out := make([]store.MonthlyTotal, n)
	for i := range out {
		out[i] = store.MonthlyTotal{Quantity: quantity}
	}
	return out
}

func testCosts() unitCosts {
	return unitCosts{ElectricityPerKwh: 4.5, GasPerM3: 15}
}

func istanbulFacility(ft domain.FacilityType, area *float64) *domain.Facility {
	return &domain.Facility{City: "Istanbul", FacilityType: ft, SurfaceAreaM2: area}
}

func TestSolarSuggestionNumbers(t *testing.T) {
	e := &Engine{defaults: config.DefaultSuggestionParameters()}
	params := config.DefaultSuggestionParameters()

	s := e.solar(istanbulFacility(domain.FacilityProduction, nil), months(12, 2000), params, testCosts())
	require.NotNil(t, s)
	assert.Equal(t, KindSolar, s.Kind)
	// 24000 kWh/yr, 90% covered at 1350 kWh/kWp: 16 kWp, 400000 TL,
	// 97200 TL/yr savings.
	assert.InDelta(t, 16.0, s.RequiredKwp, 0.1)
	assert.InDelta(t, 400000, s.InvestmentTL, 0.1)
	assert.InDelta(t, 97200, s.AnnualSavingsTL, 0.1)
	assert.InDelta(t, 4.1, s.ROIYears, 0.05)
	assert.InDelta(t, 24000, s.CalculationDetails["annual_consumption_kwh"], 0.1)
	assert.InDelta(t, 21600, s.CalculationDetails["covered_kwh"], 0.1)
	assert.InDelta(t, 4.5, s.CalculationDetails["electricity_cost_per_kwh"], 1e-9)
}

func TestSolarOnlyForRoofedFacilityTypes(t *testing.T) {
	e := &Engine{defaults: config.DefaultSuggestionParameters()}
	params := config.DefaultSuggestionParameters()

	assert.Nil(t, e.solar(istanbulFacility(domain.FacilityOffice, nil), months(12, 2000), params, testCosts()))
	assert.Nil(t, e.solar(istanbulFacility(domain.FacilityRetail, nil), months(12, 2000), params, testCosts()))

	s := e.solar(istanbulFacility(domain.FacilityWarehouse, nil), months(12, 2000), params, testCosts())
	require.NotNil(t, s)
	assert.Equal(t, KindSolar, s.Kind)
}

func TestSolarNeedsNineMonthsOfData(t *testing.T) {
	e := &Engine{defaults: config.DefaultSuggestionParameters()}
	params := config.DefaultSuggestionParameters()

	s := e.solar(istanbulFacility(domain.FacilityProduction, nil), months(5, 2000), params, testCosts())
	require.NotNil(t, s)
	assert.Equal(t, KindInfo, s.Kind)
	assert.Equal(t, ReasonInsufficientData, s.Reason)
}

func TestSolarRejectsLowConsumption(t *testing.T) {
	e := &Engine{defaults: config.DefaultSuggestionParameters()}
	params := config.DefaultSuggestionParameters()

	s := e.solar(istanbulFacility(domain.FacilityProduction, nil), months(12, 500), params, testCosts())
	require.NotNil(t, s)
	assert.Equal(t, KindInfo, s.Kind)
	assert.Equal(t, ReasonLowConsumption, s.Reason)
}

func TestInsulationOnlyForOfficesWithArea(t *testing.T) {
	e := &Engine{defaults: config.DefaultSuggestionParameters()}
	params := config.DefaultSuggestionParameters()
	area := 500.0

	assert.Nil(t, e.insulation(istanbulFacility(domain.FacilityProduction, &area), months(12, 400), params, testCosts()))
	assert.Nil(t, e.insulation(istanbulFacility(domain.FacilityOffice, nil), months(12, 400), params, testCosts()))
}

func TestInsulationCityFactorTipsTheROI(t *testing.T) {
	e := &Engine{defaults: config.DefaultSuggestionParameters()}
	params := config.DefaultSuggestionParameters()
	area := 500.0

	// Istanbul: 4000 m3 saved, 60000 TL/yr against 750000 TL, 12.5 years.
	s := e.insulation(istanbulFacility(domain.FacilityOffice, &area), months(12, 400), params, testCosts())
	require.NotNil(t, s)
	assert.Equal(t, KindInfo, s.Kind)
	assert.Equal(t, ReasonLowConsumption, s.Reason)

	// Erzurum's 1.4 climate factor brings the payback under the cap.
	cold := &domain.Facility{City: "Erzurum", FacilityType: domain.FacilityOffice, SurfaceAreaM2: &area}
	s = e.insulation(cold, months(12, 400), params, testCosts())
	require.NotNil(t, s)
	assert.Equal(t, KindInsulation, s.Kind)
	assert.InDelta(t, 84000, s.AnnualSavingsTL, 0.1)
	assert.InDelta(t, 8.9, s.ROIYears, 0.05)
	assert.InDelta(t, 500, s.CalculationDetails["surface_area_m2"], 1e-9)
	assert.InDelta(t, 1.4, s.CalculationDetails["city_factor"], 1e-9)
}

func TestCityFactorFallsBackToOne(t *testing.T) {
	params := config.DefaultSuggestionParameters()
	assert.InDelta(t, 1.15, cityFactor(params, "Ankara"), 1e-9)
	assert.InDelta(t, 1.0, cityFactor(params, "Mars"), 1e-9)
	assert.InDelta(t, 1.4, cityFactor(params, "  ERZURUM  "), 1e-9)
}
