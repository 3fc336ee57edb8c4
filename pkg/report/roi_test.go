package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeROIRanksByPayback(t *testing.T) {
	analysis := AnalyzeROI(ROIInput{
		AnnualElectricityKwh:  120000,
		AnnualGasM3:           8000,
		SurfaceAreaM2:         400,
		ElectricityCostPerKwh: 4.5,
		GasCostPerM3:          15,
	})

	require.Len(t, analysis.Items, 3)
	for i := 1; i < len(analysis.Items); i++ {
		assert.LessOrEqual(t, analysis.Items[i-1].PaybackMonths, analysis.Items[i].PaybackMonths,
			"items must be ordered by payback ascending")
	}

	var totalSavings, totalInvestment, paybackSum float64
	for _, it := range analysis.Items {
		totalSavings += it.AnnualSavingsTL
		totalInvestment += it.InvestmentTL
		paybackSum += it.PaybackMonths
	}
	assert.InDelta(t, totalSavings, analysis.TotalSavingsTL, 0.01)
	assert.InDelta(t, totalInvestment, analysis.TotalInvestmentTL, 0.01)
	assert.InDelta(t, paybackSum/3, analysis.AveragePaybackMonths, 0.01)
}

func TestAnalyzeROILightingNumbers(t *testing.T) {
	analysis := AnalyzeROI(ROIInput{
		AnnualElectricityKwh:  100000,
		ElectricityCostPerKwh: 4.5,
	})

	var lighting *ROIItem
	for i := range analysis.Items {
		if analysis.Items[i].Code == "lighting_upgrade" {
			lighting = &analysis.Items[i]
		}
	}
	require.NotNil(t, lighting, "lighting upgrade should rank in the top three")

	// 30% of 100000 kWh at 4.5 TL saved; 40 kW average load at 500 TL/kW.
	assert.InDelta(t, 135000, lighting.AnnualSavingsTL, 0.01)
	assert.InDelta(t, 30000, lighting.AnnualSavingsKwh, 0.01)
	assert.InDelta(t, 14.25, lighting.CO2ReductionTonnes, 0.01)
	assert.InDelta(t, 20000, lighting.InvestmentTL, 0.01)
	assert.InDelta(t, 1.78, lighting.PaybackMonths, 0.01)
	assert.Positive(t, lighting.NPV)
	assert.Greater(t, lighting.IRRPercent, 100.0)
}

func TestAnalyzeROIDieselFeedsFleetMeasure(t *testing.T) {
	analysis := AnalyzeROI(ROIInput{
		AnnualDieselL:  40000,
		DieselCostPerL: 40,
	})

	require.Len(t, analysis.Items, 1)
	fleet := analysis.Items[0]
	assert.Equal(t, "fleet_route_optimization", fleet.Code)
	// 15% of 40000 litres at 40 TL.
	assert.InDelta(t, 240000, fleet.AnnualSavingsTL, 0.01)
	assert.InDelta(t, 60000, fleet.InvestmentTL, 0.01)
	assert.InDelta(t, 3, fleet.PaybackMonths, 0.01)
	// 6000 litres at 2.68 kg each.
	assert.InDelta(t, 16.08, fleet.CO2ReductionTonnes, 0.01)
}

func TestAnalyzeROIDropsSlowPaybacks(t *testing.T) {
	// A tiny electricity profile makes every fixed-cost measure pay back in
	// far more than 999 months.
	analysis := AnalyzeROI(ROIInput{
		AnnualElectricityKwh:  100,
		ElectricityCostPerKwh: 1,
	})
	for _, it := range analysis.Items {
		assert.LessOrEqual(t, it.PaybackMonths, 999.0)
		assert.NotEqual(t, "process_optimization", it.Code)
	}
}

func TestAnalyzeROIUsesDefaultCosts(t *testing.T) {
	withDefaults := AnalyzeROI(ROIInput{AnnualElectricityKwh: 50000})
	explicit := AnalyzeROI(ROIInput{
		AnnualElectricityKwh:  50000,
		ElectricityCostPerKwh: DefaultElectricityCostKwh,
		GasCostPerM3:          DefaultGasCostM3,
		DieselCostPerL:        DefaultDieselCostL,
	})
	assert.Equal(t, explicit, withDefaults)
}

func TestAnalyzeROISkipsGasMeasuresWithoutSurfaceArea(t *testing.T) {
	analysis := AnalyzeROI(ROIInput{
		AnnualElectricityKwh: 50000,
		AnnualGasM3:          5000,
	})
	for _, it := range analysis.Items {
		assert.NotEqual(t, "insulation_improvement", it.Code,
			"gas measures need a declared surface area")
	}
}

func TestAnalyzeROIEmptyProfile(t *testing.T) {
	analysis := AnalyzeROI(ROIInput{})
	assert.Empty(t, analysis.Items)
	assert.Zero(t, analysis.TotalSavingsTL)
	assert.Zero(t, analysis.TotalInvestmentTL)
	assert.Zero(t, analysis.AveragePaybackMonths)
}
